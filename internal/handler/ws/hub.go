package ws

import (
	"sync"

	json "github.com/goccy/go-json"

	"swapdesk/internal/model"
	"swapdesk/pkg/logger"
)

// Hub 按账户管理活跃会话，负责事件扇出。
// 发送永远不阻塞：队列满的慢消费者直接丢消息
type Hub struct {
	mu sync.RWMutex
	// 账户id -> 订阅该账户事件的会话集合
	sessions map[uint]map[*Session]struct{}
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[uint]map[*Session]struct{})}
}

// attach 会话切到某个账户后开始接收该账户的事件
func (h *Hub) attach(s *Session, accountID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[accountID]; !ok {
		h.sessions[accountID] = make(map[*Session]struct{})
	}
	h.sessions[accountID][s] = struct{}{}
}

func (h *Hub) detach(s *Session, accountID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.sessions[accountID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.sessions, accountID)
		}
	}
}

// Broadcast 向订阅某账户的全部会话推事件
func (h *Hub) Broadcast(accountID uint, event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("marshal event failed", logger.Pair("type", event.Type), logger.Pair("err", err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.sessions[accountID] {
		select {
		case s.send <- data:
		default:
			// 慢消费者丢消息，不拖住别的会话
			logger.Warn("session send buffer full, drop event",
				logger.Pair("accountId", accountID),
				logger.Pair("type", event.Type))
		}
	}
}

// Sessions 某账户当前的会话数
func (h *Hub) Sessions(accountID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[accountID])
}

// OrderFilled 实现gateway.Notifier
func (h *Hub) OrderFilled(accountID uint, order *model.Order, trade *model.Trade) {
	h.Broadcast(accountID, &Event{Type: EvtOrderFilled, Data: map[string]interface{}{
		"order": order,
		"trade": trade,
	}})
}

// OrderPending 实现gateway.Notifier
func (h *Hub) OrderPending(accountID uint, order *model.Order) {
	h.Broadcast(accountID, &Event{Type: EvtOrderPending, Data: map[string]interface{}{
		"order": order,
	}})
}
