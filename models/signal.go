package models

import "time"

// SignalDirection is the direction of a trading signal
type SignalDirection string

const (
	SignalBuy  SignalDirection = "BUY"
	SignalSell SignalDirection = "SELL"
	SignalHold SignalDirection = "HOLD"
)

// TradingSignal is an ephemeral signal computed from the latest quote, recent
// bars and a sentiment score. It is created fresh on every request, never
// mutated, and superseded by the next computation.
type TradingSignal struct {
	Symbol      string          `json:"symbol"`
	Direction   SignalDirection `json:"direction"`
	Confidence  float64         `json:"confidence"` // 0-1
	TargetPrice float64         `json:"target_price"`
	Reason      string          `json:"reason"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// TradingSignalRecord stores generated signals so the cleanup job can expire
// them. The live engine never reads these back.
type TradingSignalRecord struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Symbol      string          `gorm:"index" json:"symbol"`
	Direction   SignalDirection `json:"direction"`
	Confidence  float64         `json:"confidence"`
	TargetPrice float64         `json:"target_price"`
	Reason      string          `json:"reason"`
	CreatedAt   time.Time       `json:"created_at"`
}
