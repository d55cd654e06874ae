package event

// Per-type payload schemas. Producers marshal one of these into Event.Data;
// consumers that care about shape decode against the schema for the type.

// MarketCreatedPayload is the schema for market_created events.
type MarketCreatedPayload struct {
	MarketID    string `json:"market_id"`
	Description string `json:"description"`
	Creator     string `json:"creator"`
	CloseTime   int64  `json:"close_time"`
}

// BetPlacedPayload is the schema for bet_placed events.
type BetPlacedPayload struct {
	BetID    string `json:"bet_id"`
	MarketID string `json:"market_id"`
	UserID   string `json:"user_id"`
	Outcome  int    `json:"outcome"`
	Amount   string `json:"amount"`
}

// MarketResolvedPayload is the schema for market_resolved events.
type MarketResolvedPayload struct {
	Price       string `json:"price,omitempty"`
	Outcome     int    `json:"outcome"`
	TriggeredBy string `json:"triggered_by"`
}

// PriceUpdatePayload is the schema for price_update events.
type PriceUpdatePayload struct {
	Price          string  `json:"price"`
	PreviousPrice  string  `json:"previous_price"`
	Change         float64 `json:"change"`
	SubscriptionID string  `json:"subscription_id,omitempty"`
}

// OddsChangedPayload is the schema for odds_changed events.
type OddsChangedPayload struct {
	MarketID  string            `json:"market_id"`
	Odds      map[string]string `json:"odds"`
	Timestamp int64             `json:"timestamp"`
}

// UserStreakUpdatedPayload is the schema for user_streak_updated events.
type UserStreakUpdatedPayload struct {
	UserID string `json:"user_id"`
	Streak int    `json:"streak"`
}

// LeaderboardPayload is the schema for league_leaderboard_updated events.
type LeaderboardPayload struct {
	LeagueID    string             `json:"league_id"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
	Timestamp   int64              `json:"timestamp"`
}

// LeaderboardEntry is one row of a league leaderboard.
type LeaderboardEntry struct {
	Address string `json:"address"`
	Score   string `json:"score"`
}

// StopLossTriggeredPayload is the schema for stop_loss_triggered events.
type StopLossTriggeredPayload struct {
	BetID    string `json:"bet_id"`
	MarketID string `json:"market_id"`
	UserID   string `json:"user_id"`
}

// LiquidityAddedPayload is the schema for liquidity_added events.
type LiquidityAddedPayload struct {
	MarketID string `json:"market_id"`
	Volume   string `json:"volume"`
}

// SocialInteractionPayload is the schema for social_interaction events.
type SocialInteractionPayload struct {
	Kind        string `json:"kind"` // "chat_message", "like", "reply"
	MessageID   string `json:"message_id"`
	Sender      string `json:"sender"`
	Message     string `json:"message,omitempty"`
	MessageType string `json:"message_type,omitempty"`
}

// AIPredictionPayload is the schema for ai_prediction events.
type AIPredictionPayload struct {
	MarketID   string  `json:"market_id"`
	Outcome    int     `json:"outcome"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale,omitempty"`
}

// CopyTradingExecutedPayload is the schema for copy_trading_executed events.
type CopyTradingExecutedPayload struct {
	LeaderID   string `json:"leader_id"`
	FollowerID string `json:"follower_id"`
	BetID      string `json:"bet_id"`
	MarketID   string `json:"market_id"`
}
