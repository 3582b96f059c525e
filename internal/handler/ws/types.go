package ws

// 客户端命令和服务端事件的信封格式

const (
	CmdBootstrap     = "bootstrap"
	CmdGetSnapshot   = "get_snapshot"
	CmdSwitchUser    = "switch_user"
	CmdSwitchAccount = "switch_account"
	CmdPlaceOrder    = "place_order"
)

const (
	EvtBootstrapOk     = "bootstrap_ok"
	EvtSnapshot        = "snapshot"
	EvtTrades          = "trades"
	EvtOrderFilled     = "order_filled"
	EvtOrderPending    = "order_pending"
	EvtUserSwitched    = "user_switched"
	EvtAccountSwitched = "account_switched"
	EvtError           = "error"
)

// Command 客户端发来的命令，type决定其余字段的含义
type Command struct {
	Type string `json:"type"`
	// bootstrap / switch_user
	Username string `json:"username,omitempty"`
	// switch_account
	AccountID uint `json:"account_id,omitempty"`
	// get_snapshot
	IncludeHistory bool `json:"include_history,omitempty"`
	ForceRefresh   bool `json:"force_refresh,omitempty"`
	// place_order
	Order *OrderCommand `json:"order,omitempty"`
}

// OrderCommand 下单命令体，字段语义与REST下单一致
type OrderCommand struct {
	CorrelationId string  `json:"correlation_id,omitempty"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	OrderType     string  `json:"order_type"`
	Price         float64 `json:"price,omitempty"`
	Quantity      float64 `json:"quantity"`
	PosSide       string  `json:"pos_side,omitempty"`
	Leverage      int     `json:"leverage,omitempty"`
	MgnMode       string  `json:"mgn_mode,omitempty"`
}

// Event 服务端推送的事件。error事件带code和message，其余事件带data
type Event struct {
	Type    string      `json:"type"`
	Data    interface{} `json:"data,omitempty"`
	Code    int         `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

func ErrorEvent(code int, message string) *Event {
	return &Event{Type: EvtError, Code: code, Message: message}
}
