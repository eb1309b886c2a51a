// Package anticache bounds the total memory of derived artifacts
// (skeletons, the prefix index, query caches) to a configured ceiling,
// evicting by strategy-scoped LRU before the ceiling is ever observably
// exceeded.
package anticache

import "time"

// Strategy names one of the four closed cache tiers.
type Strategy string

const (
	Aggressive   Strategy = "aggressive"
	Moderate     Strategy = "moderate"
	Conservative Strategy = "conservative"
	Bypass       Strategy = "bypass"
)

// strategyProfile is the fixed per-strategy budget and aging policy.
type strategyProfile struct {
	capFraction float64
	maxAge      time.Duration
	priority    int
}

var profiles = map[Strategy]strategyProfile{
	Aggressive:   {capFraction: 0.25, maxAge: time.Hour, priority: 1},
	Moderate:     {capFraction: 0.50, maxAge: 6 * time.Hour, priority: 2},
	Conservative: {capFraction: 0.30, maxAge: 24 * time.Hour, priority: 3},
	Bypass:       {capFraction: 0.05, maxAge: 5 * time.Minute, priority: 1},
}

// emergencyOrder is the fixed strategy visitation order for emergency
// eviction: least to most durable.
var emergencyOrder = []Strategy{Bypass, Aggressive, Moderate, Conservative}

// allStrategies enumerates every strategy in a stable order.
var allStrategies = []Strategy{Aggressive, Moderate, Conservative, Bypass}

func (s Strategy) valid() bool {
	_, ok := profiles[s]
	return ok
}

func (s Strategy) capBytes(ceilingBytes float64) float64 {
	return profiles[s].capFraction * ceilingBytes
}

func (s Strategy) maxAge() time.Duration {
	return profiles[s].maxAge
}
