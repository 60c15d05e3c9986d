package models

import (
	"math"
	"time"
)

// DefaultOrder sorts unconfigured instruments after configured ones.
const DefaultOrder = 9999

// Direction is the upstream movement hint per side ("up", "down" or empty).
type Direction struct {
	BuyDir  string `json:"buyDir"`
	SellDir string `json:"sellDir"`
}

// NormalizedQuote is one upstream instrument after normalization.
type NormalizedQuote struct {
	Code      string    `json:"code"`
	Buy       float64   `json:"buy"`
	Sell      float64   `json:"sell"`
	Low       float64   `json:"low"`
	High      float64   `json:"high"`
	Close     float64   `json:"close"`
	Direction Direction `json:"direction"`
	Date      string    `json:"date,omitempty"`
}

// CanonicalTick maps instrument code to its normalized quote.
type CanonicalTick map[string]NormalizedQuote

// Codes returns the tick's codes in no particular order.
func (t CanonicalTick) Codes() []string {
	codes := make([]string, 0, len(t))
	for c := range t {
		codes = append(codes, c)
	}
	return codes
}

// Quote is a displayable instrument in the published snapshot.
type Quote struct {
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	Category       string    `json:"category"`
	RawBuy         float64   `json:"rawBuy"`
	RawSell        float64   `json:"rawSell"`
	CalculatedBuy  float64   `json:"calculatedBuy"`
	CalculatedSell float64   `json:"calculatedSell"`
	Direction      Direction `json:"direction"`
	Visible        bool      `json:"visible"`
	Order          int       `json:"order"`
	IsDerived      bool      `json:"isDerived"`
}

// Price returns the calculated price for a side.
func (q Quote) Price(side Side) float64 {
	if side == SideBuy {
		return q.CalculatedBuy
	}
	return q.CalculatedSell
}

// Valid reports whether both calculated prices are finite and positive.
func (q Quote) Valid() bool {
	return validPrice(q.CalculatedBuy) && validPrice(q.CalculatedSell)
}

func validPrice(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

// FilterValid returns the quotes that may be published, preserving order.
func FilterValid(quotes []Quote) []Quote {
	out := make([]Quote, 0, len(quotes))
	for _, q := range quotes {
		if q.Valid() {
			out = append(out, q)
		}
	}
	return out
}

// HistoryRecord is an append-only price change entry.
type HistoryRecord struct {
	Code           string    `json:"code"`
	RawBuy         float64   `json:"rawBuy"`
	RawSell        float64   `json:"rawSell"`
	CalculatedBuy  float64   `json:"calculatedBuy"`
	CalculatedSell float64   `json:"calculatedSell"`
	Direction      Direction `json:"direction"`
	Timestamp      time.Time `json:"timestamp"`
}

// Projection keys.
const (
	ProjectionCurrent = "current"
	ProjectionAll     = "all"
	ProjectionSource  = "source"
)

// ProjectionMeta describes how a projection was produced.
type ProjectionMeta struct {
	Time   time.Time `json:"time"`
	Count  int       `json:"count"`
	Source string    `json:"source"`
}

// CacheProjection is a persisted view of the snapshot keyed by name.
type CacheProjection struct {
	Key       string         `json:"key"`
	Entries   []Quote        `json:"entries"`
	Meta      ProjectionMeta `json:"meta"`
	UpdatedAt time.Time      `json:"updatedAt"`
}
