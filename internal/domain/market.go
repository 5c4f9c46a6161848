package domain

import "time"

// Bar is one daily OHLCV record.
// Corresponds to daily_bars table in ClickHouse.
type Bar struct {
	Ticker string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// EarningsRecord is one reported quarter with its consensus estimate.
// Corresponds to earnings table in PostgreSQL.
type EarningsRecord struct {
	Ticker       string
	ReportDate   time.Time
	EstimatedEPS float64
	ReportedEPS  float64
}

// EarningsSurprise is the point-in-time surprise derived from an EarningsRecord.
type EarningsSurprise struct {
	Ticker       string
	ReportDate   time.Time
	EstimatedEPS float64
	ReportedEPS  float64
	SurprisePct  float64 // 0.05 = 5% beat
}

// Holder is one institutional holder position.
type Holder struct {
	Name    string
	PctHeld float64 // 0.07 = 7% of shares outstanding
}

// Fundamentals holds non-price company data.
// Corresponds to fundamentals and institutional_holders tables.
type Fundamentals struct {
	Ticker     string
	TrailingPE *float64 // nil when not reported
	Holders    []Holder
}
