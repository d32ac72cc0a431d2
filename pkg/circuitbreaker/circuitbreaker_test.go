package circuitbreaker_test

import (
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
	"github.com/vaultgate/vaultgate/pkg/circuitbreaker"
)

func TestCircuitBreaker(t *testing.T) {
	cb := circuitbreaker.NewCircuitBreaker("ledger")
	require.Equal(t, "ledger", cb.Name())

	failure := errors.New("remote failure")
	for i := 0; i <= circuitbreaker.MaxNumOfFailingRequests; i++ {
		_, err := cb.Execute(func() (interface{}, error) {
			return nil, failure
		})
		require.ErrorIs(t, err, failure)
	}
	require.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.Execute(func() (interface{}, error) {
		return nil, nil
	})
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestCircuitBreakerStaysClosed(t *testing.T) {
	cb := circuitbreaker.NewCircuitBreaker("ledger")

	failure := errors.New("remote failure")
	for i := 0; i < 3*circuitbreaker.MaxNumOfFailingRequests; i++ {
		_, _ = cb.Execute(func() (interface{}, error) {
			if i%2 == 0 {
				return nil, failure
			}
			return nil, nil
		})
	}
	require.Equal(t, gobreaker.StateClosed, cb.State())
}
