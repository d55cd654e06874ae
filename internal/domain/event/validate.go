package event

import (
	"encoding/json"
	"fmt"
)

// Validate checks whether data is valid JSON conforming to the payload
// schema associated with the given event type. Unknown types pass
// validation (future-proof for new event kinds).
func Validate(t Type, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON for event type %s", t)
	}

	var target any
	switch t {
	case TypeMarketCreated:
		target = &MarketCreatedPayload{}
	case TypeBetPlaced:
		target = &BetPlacedPayload{}
	case TypeMarketResolved:
		target = &MarketResolvedPayload{}
	case TypePriceUpdate:
		target = &PriceUpdatePayload{}
	case TypeOddsChanged:
		target = &OddsChangedPayload{}
	case TypeUserStreakUpdated:
		target = &UserStreakUpdatedPayload{}
	case TypeLeagueLeaderboardUpdated:
		target = &LeaderboardPayload{}
	case TypeStopLossTriggered:
		target = &StopLossTriggeredPayload{}
	case TypeLiquidityAdded:
		target = &LiquidityAddedPayload{}
	case TypeSocialInteraction:
		target = &SocialInteractionPayload{}
	case TypeAIPrediction:
		target = &AIPredictionPayload{}
	case TypeCopyTradingExecuted:
		target = &CopyTradingExecutedPayload{}
	default:
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", t, err)
	}
	return nil
}
