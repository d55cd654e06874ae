// Package event defines the immutable real-time event envelope and its
// per-type payload schemas.
package event

import (
	"encoding/json"
	"time"
)

// Type identifies the kind of real-time event.
type Type string

const (
	TypeMarketCreated            Type = "market_created"
	TypeBetPlaced                Type = "bet_placed"
	TypeMarketResolved           Type = "market_resolved"
	TypePriceUpdate              Type = "price_update"
	TypeOddsChanged              Type = "odds_changed"
	TypeUserStreakUpdated        Type = "user_streak_updated"
	TypeLeagueLeaderboardUpdated Type = "league_leaderboard_updated"
	TypeStopLossTriggered        Type = "stop_loss_triggered"
	TypeLiquidityAdded           Type = "liquidity_added"
	TypeSocialInteraction        Type = "social_interaction"
	TypeAIPrediction             Type = "ai_prediction"
	TypeCopyTradingExecuted      Type = "copy_trading_executed"
)

// Priority ranks an event for downstream consumers. It does not affect
// delivery order.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Event is a single immutable real-time event. Once published it is never
// mutated; the event cache holds it for the configured retention window.
type Event struct {
	ID        string          `json:"id"`
	EventType Type            `json:"event_type"`
	MarketID  string          `json:"market_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	Priority  Priority        `json:"priority"`
	Source    string          `json:"source"`
}
