// Package notification defines the per-user push notification record.
package notification

import (
	"encoding/json"
	"time"

	"github.com/lucylow/kale-ndar-sub000/internal/domain/event"
)

// Type identifies the kind of push notification.
type Type string

const (
	TypeMarketResolution     Type = "market_resolution"
	TypeWinningBet           Type = "winning_bet"
	TypeLosingBet            Type = "losing_bet"
	TypeStopLossTriggered    Type = "stop_loss_triggered"
	TypeStreakMilestone      Type = "streak_milestone"
	TypeLeagueUpdate         Type = "league_update"
	TypeFollowedUserBet      Type = "followed_user_bet"
	TypeAIInsight            Type = "ai_insight"
	TypeLiquidityOpportunity Type = "liquidity_opportunity"
)

// Notification is a single per-user push notification. Only the IsRead flag
// is ever mutated after creation.
type Notification struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	Title            string          `json:"title"`
	Message          string          `json:"message"`
	NotificationType Type            `json:"notification_type"`
	Data             json.RawMessage `json:"data,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
	IsRead           bool            `json:"is_read"`
	Priority         event.Priority  `json:"priority"`
}
