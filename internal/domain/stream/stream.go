// Package stream defines the market data stream record and its cadence
// configuration.
package stream

import "time"

// Cadence configures the three independent tick intervals of a market data
// stream.
type Cadence struct {
	Price  time.Duration `json:"price"`
	Odds   time.Duration `json:"odds"`
	Volume time.Duration `json:"volume"`
}

// Stream describes one market's active data stream. At most one Stream
// exists per market at a time.
type Stream struct {
	MarketID        string    `json:"market_id"`
	Cadence         Cadence   `json:"cadence"`
	IsActive        bool      `json:"is_active"`
	SubscriberCount int       `json:"subscriber_count"`
	StartedAt       time.Time `json:"started_at"`
}
