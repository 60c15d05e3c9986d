package models

import "fmt"

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// ParseSide accepts the canonical names and the upstream Turkish aliases.
func ParseSide(s string) (Side, error) {
	switch s {
	case "buy", "alis":
		return SideBuy, nil
	case "sell", "satis":
		return SideSell, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

// Coefficient adjusts one side of an upstream instrument.
type Coefficient struct {
	Code       string  `json:"code"`
	Side       Side    `json:"side"`
	Multiplier float64 `json:"multiplier"`
	Addition   float64 `json:"addition"`
	Name       string  `json:"name,omitempty"`
	Visible    bool    `json:"visible"`
	Order      int     `json:"order"`
	Category   string  `json:"category"`
}

type CoefficientKey struct {
	Code string
	Side Side
}

func (c Coefficient) Key() CoefficientKey { return CoefficientKey{Code: c.Code, Side: c.Side} }

// Leg computes one side of a derived instrument from a source instrument.
type Leg struct {
	SourceCode string  `json:"sourceCode"`
	SourceSide Side    `json:"sourceSide"`
	Multiplier float64 `json:"multiplier"`
	Addition   float64 `json:"addition"`
}

// DerivedDefinition is a business-defined instrument built from two legs.
type DerivedDefinition struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Category string `json:"category"`
	BuyLeg   Leg    `json:"buyLeg"`
	SellLeg  Leg    `json:"sellLeg"`
	Order    int    `json:"order"`
	Visible  bool   `json:"visible"`
}
