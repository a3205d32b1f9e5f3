package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PartyID         int64  `json:"party_id"`
	Name            string `json:"name,omitempty"`
	MaxQueue        int    `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PartyID         int64  `json:"party_id"`
	Name            string `json:"name"`
	Tick            uint64 `json:"tick"`
}

// ACT (client -> server)
type ActMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Instants        []InstantReq `json:"instants"`
}

// Instant trade action types.
const (
	InstantTradeRequest  = "TRADE_REQUEST"
	InstantTradeOffer    = "TRADE_OFFER"
	InstantTradeMove     = "TRADE_MOVE"
	InstantTradeWithdraw = "TRADE_WITHDRAW"
	InstantTradeAccept   = "TRADE_ACCEPT"
	InstantTradeUnaccept = "TRADE_UNACCEPT"
	InstantTradeCancel   = "TRADE_CANCEL"
)

type InstantReq struct {
	ID   string `json:"id"`
	Type string `json:"type"`

	With int64  `json:"with,omitempty"`
	Item int64  `json:"item,omitempty"`
	To   string `json:"to,omitempty"` // window kind for TRADE_MOVE
	Rev  uint64 `json:"rev,omitempty"`
}

// EVENTS (server -> client)
type EventsMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Tick            uint64  `json:"tick"`
	PartyID         int64   `json:"party_id"`
	Events          []Event `json:"events"`
}

type Event map[string]interface{}

// Event types delivered to parties.
const (
	EventActionResult     = "ACTION_RESULT"
	EventMessage          = "MESSAGE"
	EventTradeStarted     = "TRADE_STARTED"
	EventTradeChanged     = "TRADE_CHANGED"
	EventTradeItemAdded   = "TRADE_ITEM_ADDED"
	EventTradeItemRemoved = "TRADE_ITEM_REMOVED"
	EventTradeSatisfied   = "TRADE_SATISFIED"
	EventTradeDone        = "TRADE_DONE"
	EventTradeCancelled   = "TRADE_CANCELLED"
)
