package sim

import (
	"fmt"
	"math"
)

// StyleKind selects how a demand or supply series evolves round over round.
type StyleKind string

const (
	StyleDefault        StyleKind = "default"
	StyleLinear         StyleKind = "linear"
	StyleMultiplication StyleKind = "multiplication"
	StyleExponential    StyleKind = "exponential"
	StyleList           StyleKind = "list"
)

// GeneratedOrderStyle is the tagged configuration for one generated series.
// Only the fields relevant to Kind are meaningful; the rest are ignored.
type GeneratedOrderStyle struct {
	Kind      StyleKind `json:"kind"`
	Start     int64     `json:"start,omitempty"`
	Increase  int64     `json:"increase,omitempty"`
	Power     int64     `json:"power,omitempty"`
	Modulator int64     `json:"modulator,omitempty"`
	List      []int64   `json:"list,omitempty"`
}

// defaultStartValue is the initial demand/supply when the style carries
// no explicit start of its own.
const defaultStartValue = 10

// Validate rejects configurations that cannot be evaluated at runtime.
// An empty list is a configuration error, not a runtime case: callers
// must validate styles before a game starts.
func (s GeneratedOrderStyle) Validate() error {
	switch s.Kind {
	case StyleDefault, StyleLinear, StyleMultiplication, StyleExponential:
		return nil
	case StyleList:
		if len(s.List) == 0 {
			return fmt.Errorf("list style requires at least one value")
		}
		return nil
	default:
		return fmt.Errorf("unknown generation style %q", s.Kind)
	}
}

// InitialValue returns the first value of the series.
func (s GeneratedOrderStyle) InitialValue() (int64, error) {
	switch s.Kind {
	case StyleDefault:
		return defaultStartValue, nil
	case StyleLinear, StyleMultiplication, StyleExponential:
		return s.Start, nil
	case StyleList:
		if len(s.List) == 0 {
			return 0, fmt.Errorf("list style requires at least one value")
		}
		return s.List[0], nil
	default:
		return 0, fmt.Errorf("unknown generation style %q", s.Kind)
	}
}

// GenerateNext computes the series value that follows previous.
//
// List styles replay a fixed script: the element after the one matching
// previous is returned, and once the script is exhausted (or previous is
// not in it at all) the last element repeats forever. That saturation is
// the intended end-of-script behavior, not an error.
func GenerateNext(previous int64, style GeneratedOrderStyle) int64 {
	switch style.Kind {
	case StyleLinear:
		return previous + style.Increase
	case StyleMultiplication:
		return previous * style.Increase
	case StyleExponential:
		return previous * (style.Modulator * int64(math.Exp(float64(style.Power))))
	case StyleList:
		if len(style.List) == 0 {
			// Rejected by Validate before game start; hold the series instead
			// of panicking if a bad config slips through.
			return previous
		}
		for i, v := range style.List {
			if v == previous && i+1 < len(style.List) {
				return style.List[i+1]
			}
		}
		return style.List[len(style.List)-1]
	default:
		return int64(float64(previous) * 1.5)
	}
}
