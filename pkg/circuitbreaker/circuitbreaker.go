package circuitbreaker

import (
	"github.com/sony/gobreaker"
	log "github.com/sirupsen/logrus"
)

var (
	// MaxNumOfFailingRequests ...
	MaxNumOfFailingRequests = 10
	// FailingRatio ...
	FailingRatio = 0.6
)

// NewCircuitBreaker is a factory function returning a *gobreaker.CircuitBreaker
// with a default state-changing function that activates if the overall number
// of failing requests have reached a tweakable MaxNumOfFailingRequests cap and
// the failing ratio has met the FailingRatio.
// Every state change is logged with the given name to identify the remote
// service.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:          name,
		ReadyToTrip:   readyToTrip,
		OnStateChange: logStateChange,
	})
}

func readyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests == 0 {
		return false
	}
	ratio := float64(counts.TotalFailures) / float64(counts.Requests)
	return int(counts.Requests) > MaxNumOfFailingRequests && ratio >= FailingRatio
}

func logStateChange(name string, from, to gobreaker.State) {
	if to == gobreaker.StateOpen {
		log.Warnf("%s seems down, stop allowing requests", name)
	}
	if from == gobreaker.StateOpen && to == gobreaker.StateHalfOpen {
		log.Infof("checking %s status", name)
	}
	if from == gobreaker.StateHalfOpen && to == gobreaker.StateClosed {
		log.Infof("%s seems ok, restart allowing requests", name)
	}
}
