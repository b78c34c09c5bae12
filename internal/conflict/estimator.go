package conflict

import (
	"strings"
	"time"
)

// TravelEstimator supplies the travel time needed between two locations.
type TravelEstimator interface {
	EstimateTravelTime(from, to string) time.Duration
}

// EstimatorFunc adapts a plain function to TravelEstimator.
type EstimatorFunc func(from, to string) time.Duration

func (f EstimatorFunc) EstimateTravelTime(from, to string) time.Duration {
	return f(from, to)
}

// PlaceholderEstimator assumes no travel within one location and a fixed
// conservative duration between any two different ones.
type PlaceholderEstimator struct {
	Default time.Duration
}

func (p PlaceholderEstimator) EstimateTravelTime(from, to string) time.Duration {
	if sameLocation(from, to) {
		return 0
	}
	return p.Default
}

func sameLocation(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
