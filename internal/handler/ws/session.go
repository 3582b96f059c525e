package ws

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"swapdesk/internal/consts"
	"swapdesk/internal/dao"
	"swapdesk/internal/exchange"
	"swapdesk/internal/gateway"
	"swapdesk/internal/model"
	"swapdesk/internal/snapshot"
	"swapdesk/pkg/errors"
	"swapdesk/pkg/errors/ecode"
	"swapdesk/pkg/logger"
)

const sendBufferSize = 64

// Deps 会话需要的全部依赖，启动期装配一次
type Deps struct {
	Users    *dao.UserDao
	Accounts *dao.AccountDao
	Engine   *snapshot.Engine
	Gateway  *gateway.Gateway
	Manager  *exchange.Manager
}

type Handler struct {
	deps     Deps
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewHandler(deps Deps, hub *Hub) *Handler {
	return &Handler{
		deps: deps,
		hub:  hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // 允许跨域
		},
	}
}

// Session 一条websocket连接的服务端状态。
// user/account只在readPump协程里读写，不需要加锁
type Session struct {
	handler *Handler
	conn    *websocket.Conn
	send    chan []byte

	// 连接级context，断开时取消，带停未完成的快照查询
	ctx    context.Context
	cancel context.CancelFunc

	user    *model.User
	account *model.Account
	ex      exchange.Exchange
}

// ServeWS 升级连接并进入读循环
func (h *Handler) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.Pair("err", err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		handler: h,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	go s.writePump()
	s.readPump()
}

func (s *Session) writePump() {
	defer s.conn.Close()
	for {
		select {
		case msg := <-s.send:
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Warn("websocket write failed", logger.Pair("err", err))
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) readPump() {
	defer s.teardown()

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			// 异常断开只记日志，不影响其他会话
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("websocket abnormal close", logger.Pair("err", err))
			}
			return
		}

		var cmd Command
		if err = json.Unmarshal(msg, &cmd); err != nil {
			s.sendEvent(ErrorEvent(ecode.BadRequestErr, "malformed command"))
			continue
		}
		s.dispatch(&cmd)
	}
}

// teardown 断开清理：取消在途查询，释放交易所连接，退出hub。
// send通道不关闭，writePump靠ctx退出，避免和广播协程竞争
func (s *Session) teardown() {
	s.cancel()
	if s.account != nil {
		s.handler.hub.detach(s, s.account.ID)
		s.handler.deps.Manager.Release(s.account)
	}
}

func (s *Session) dispatch(cmd *Command) {
	switch cmd.Type {
	case CmdBootstrap:
		s.onBootstrap(cmd, EvtBootstrapOk)
	case CmdGetSnapshot:
		s.onGetSnapshot(cmd)
	case CmdSwitchUser:
		s.onBootstrap(cmd, EvtUserSwitched)
	case CmdSwitchAccount:
		s.onSwitchAccount(cmd)
	case CmdPlaceOrder:
		s.onPlaceOrder(cmd)
	default:
		s.sendEvent(ErrorEvent(ecode.BadRequestErr, "unknown command type: "+cmd.Type))
	}
}

// onBootstrap 绑定用户身份并推初始快照。switch_user走同一条路，只是事件名不同
func (s *Session) onBootstrap(cmd *Command, okEvent string) {
	username := cmd.Username
	if username == "" {
		username = consts.DefaultUsername
	}

	user, err := s.handler.deps.Users.GetOrCreate(s.ctx, username)
	if err != nil {
		s.sendError(err)
		return
	}
	accounts, err := s.handler.deps.Accounts.ListByUser(s.ctx, user.ID)
	if err != nil {
		s.sendError(err)
		return
	}
	account, err := s.handler.deps.Accounts.FirstActiveByUser(s.ctx, user.ID)
	if err != nil {
		s.sendEvent(ErrorEvent(ecode.NotFoundErr, "no active account for user "+username))
		return
	}

	if err = s.bind(user, account); err != nil {
		s.sendError(err)
		return
	}

	s.sendEvent(&Event{Type: okEvent, Data: map[string]interface{}{
		"user":            user,
		"accounts":        accounts,
		"current_account": account.ID,
	}})
	s.pushSnapshot(false, false)
}

// bind 切换当前账户，旧的交易所连接先还给管理器
func (s *Session) bind(user *model.User, account *model.Account) error {
	ex, err := s.handler.deps.Manager.Acquire(account)
	if err != nil {
		return err
	}
	if s.account != nil {
		s.handler.hub.detach(s, s.account.ID)
		s.handler.deps.Manager.Release(s.account)
	}
	s.user = user
	s.account = account
	s.ex = ex
	s.handler.hub.attach(s, account.ID)
	return nil
}

func (s *Session) onGetSnapshot(cmd *Command) {
	if s.account == nil {
		s.sendEvent(ErrorEvent(ecode.BadRequestErr, "bootstrap required"))
		return
	}
	s.pushSnapshot(cmd.IncludeHistory, cmd.ForceRefresh)
}

// pushSnapshot 拉一轮快照推给本会话。分区降级不算失败，照样推
func (s *Session) pushSnapshot(includeHistory, forceRefresh bool) {
	snap, err := s.handler.deps.Engine.Snapshot(s.ctx, s.account.ID, s.ex)
	if err != nil {
		logger.Warn("snapshot degraded",
			logger.Pair("accountId", s.account.ID),
			logger.Pair("err", err))
	}
	s.sendEvent(&Event{Type: EvtSnapshot, Data: snap})

	if includeHistory {
		history, err := s.handler.deps.Engine.History(s.ctx, s.account.ID, s.ex, forceRefresh)
		if err != nil {
			logger.Warn("history degraded",
				logger.Pair("accountId", s.account.ID),
				logger.Pair("err", err))
		}
		s.sendEvent(&Event{Type: EvtTrades, Data: history})
	}
}

func (s *Session) onSwitchAccount(cmd *Command) {
	if s.user == nil {
		s.sendEvent(ErrorEvent(ecode.BadRequestErr, "bootstrap required"))
		return
	}
	account, err := s.handler.deps.Accounts.GetByID(s.ctx, cmd.AccountID)
	if err != nil {
		s.sendEvent(ErrorEvent(ecode.NotFoundErr, "account not found"))
		return
	}
	// 只能切到自己名下的账户
	if account.UserID != s.user.ID {
		s.sendEvent(ErrorEvent(ecode.BadRequestErr, "account does not belong to current user"))
		return
	}
	if !account.IsActive {
		s.sendEvent(ErrorEvent(ecode.AccountInactiveErr, ""))
		return
	}

	if err = s.bind(s.user, account); err != nil {
		s.sendError(err)
		return
	}
	s.sendEvent(&Event{Type: EvtAccountSwitched, Data: map[string]interface{}{
		"current_account": account.ID,
	}})
	s.pushSnapshot(false, false)
}

// onPlaceOrder 下单。成交/挂单事件由网关回调经hub广播，
// 这里只处理错误和幂等命中的直接应答
func (s *Session) onPlaceOrder(cmd *Command) {
	if s.account == nil {
		s.sendEvent(ErrorEvent(ecode.BadRequestErr, "bootstrap required"))
		return
	}
	if cmd.Order == nil {
		s.sendEvent(ErrorEvent(ecode.ValidationErr, "missing order body"))
		return
	}

	o := cmd.Order
	// 下单不挂在会话context上：连接断开不撤销在途提交，订单必须走到终态
	res, err := s.handler.deps.Gateway.PlaceOrder(context.Background(), s.account, s.ex, &gateway.PlaceRequest{
		CorrelationId: o.CorrelationId,
		Symbol:        o.Symbol,
		Side:          model.OrderSide(o.Side),
		OrderType:     model.OrderType(o.OrderType),
		Price:         o.Price,
		Quantity:      o.Quantity,
		PosSide:       model.OrderPosSide(o.PosSide),
		Leverage:      o.Leverage,
		MgnMode:       model.MgnMode(o.MgnMode),
	})
	if err != nil {
		s.sendError(err)
		return
	}
	// 幂等命中不会触发网关回调，把首次结果直接回给本会话
	if res.Duplicate {
		evtType := EvtOrderPending
		if res.Filled {
			evtType = EvtOrderFilled
		}
		s.sendEvent(&Event{Type: evtType, Data: map[string]interface{}{
			"order":     res.Order,
			"duplicate": true,
		}})
	}
}

func (s *Session) sendError(err error) {
	code, message := errors.DecodeErr(err)
	s.sendEvent(ErrorEvent(code, message))
}

func (s *Session) sendEvent(event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("marshal event failed", logger.Pair("type", event.Type), logger.Pair("err", err))
		return
	}
	select {
	case s.send <- data:
	default:
		logger.Warn("session send buffer full, drop event", logger.Pair("type", event.Type))
	}
}
