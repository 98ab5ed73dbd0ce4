package metrics

import (
	"github.com/shopspring/decimal"
)

// Well-known metric names for the supported variants.
const (
	Price             = "price"
	MarketCap         = "market_cap"
	TotalSupply       = "total_supply"
	CirculatingSupply = "circulating_supply"
)

// Spec describes one tracked metric: its persisted name, how it is rendered
// in notifications, and the percentage threshold that fires an alert.
type Spec struct {
	Name         string
	Label        string
	Unit         string
	Emoji        string
	ChangeLabel  string
	ChangeEmoji  string
	Places       int32
	ThresholdPct decimal.Decimal
}

// Set is an ordered mapping from metric name to a non-negative decimal value.
// Exactly two metrics are tracked per variant; the set is fixed at
// configuration time.
type Set struct {
	names  []string
	values map[string]decimal.Decimal
}

// NewSet builds an empty set over the given metric names.
func NewSet(names ...string) Set {
	values := make(map[string]decimal.Decimal, len(names))
	for _, name := range names {
		values[name] = decimal.Zero
	}
	return Set{names: append([]string(nil), names...), values: values}
}

// Names returns the metric names in declaration order.
func (s Set) Names() []string {
	return append([]string(nil), s.names...)
}

// Get returns the value for a metric, or zero when untracked.
func (s Set) Get(name string) decimal.Decimal {
	if v, ok := s.values[name]; ok {
		return v
	}
	return decimal.Zero
}

// Set assigns a value; names not declared at construction are added at the end.
func (s *Set) Set(name string, value decimal.Decimal) {
	if s.values == nil {
		s.values = make(map[string]decimal.Decimal)
	}
	if _, ok := s.values[name]; !ok {
		s.names = append(s.names, name)
	}
	s.values[name] = value
}

// Clone returns an independent copy of the set.
func (s Set) Clone() Set {
	out := NewSet(s.names...)
	for _, name := range s.names {
		out.values[name] = s.values[name]
	}
	return out
}

// TokenData is what a metrics source produces per fetch: token identity plus
// the current values of the tracked metrics.
type TokenData struct {
	Name   string
	Symbol string
	Values Set
}
