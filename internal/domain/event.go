package domain

import "time"

// Event bus channels.
const (
	ChannelDealDiscovered = "deals.discovered"
	ChannelDealExpired    = "deals.expired"
	ChannelDealPrice      = "deals.price"
)

// Notification event types handed to the notification collaborator.
const (
	EventDealExpired = "deal_expired"
	EventGoalMatch   = "goal_match"
	EventPriceDrop   = "price_drop"
)

// DealEvent is the payload published on the deal channels.
type DealEvent struct {
	Type     string    `json:"type"`
	Deal     DealBasic `json:"deal"`
	UserID   string    `json:"user_id,omitempty"`
	GoalID   string    `json:"goal_id,omitempty"`
	OldPrice float64   `json:"old_price,omitempty"`
	At       time.Time `json:"at"`
}
