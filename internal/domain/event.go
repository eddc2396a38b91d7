package domain

import "time"

// EventType names a replay event published on the EventBus.
type EventType string

const (
	EventOrderFilled    EventType = "order_filled"
	EventOrderExpired   EventType = "order_expired"
	EventPositionOpened EventType = "position_opened"
	EventPositionClosed EventType = "position_closed"
	EventPositionSplit  EventType = "position_split"
	EventRunCompleted   EventType = "run_completed"
)

// Event is the JSON envelope published for every replay state change.
type Event struct {
	Type       EventType  `json:"event"`
	RunID      string     `json:"run_id"`
	Symbol     string     `json:"symbol"`
	Time       time.Time  `json:"time"`
	OrderID    OrderID    `json:"order_id,omitempty"`
	PositionID PositionID `json:"position_id,omitempty"`
	// RemainderID is the still-open portion created by a split.
	RemainderID PositionID `json:"remainder_id,omitempty"`
	Direction   Direction  `json:"direction,omitempty"`
	Quantity    int64      `json:"quantity,omitempty"`
	Price       float64    `json:"price,omitempty"`
	Strategy    string     `json:"strategy,omitempty"`
}
