package engine

import (
	"errors"

	"tv-bracket-bot/internal/pricing"
	"tv-bracket-bot/internal/types"
)

var (
	ErrInvalidRequest      = types.ErrInvalidRequest
	ErrNoContractAvailable = errors.New("no contract available")
	ErrQuoteUnavailable    = errors.New("quote unavailable")
	ErrFillTimeout         = errors.New("parent order not filled in time")
	ErrGatewayRejected     = errors.New("gateway rejected order")
	ErrCancelled           = errors.New("placement cancelled")
	ErrInvalidTick         = pricing.ErrInvalidTick
)

const (
	OutcomeFilled           = "FILLED"
	OutcomeInvalidRequest   = "INVALID_REQUEST"
	OutcomeNoContract       = "NO_CONTRACT"
	OutcomeQuoteUnavailable = "QUOTE_UNAVAILABLE"
	OutcomeFillTimeout      = "FILL_TIMEOUT"
	OutcomeGatewayRejected  = "GATEWAY_REJECTED"
	OutcomeCancelled        = "CANCELLED"
	OutcomeInvalidTick      = "INVALID_TICK"
	OutcomeError            = "ERROR"
)

// Outcome maps a Place error to a stable journal label. A nil error is FILLED.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeFilled
	case errors.Is(err, ErrInvalidRequest):
		return OutcomeInvalidRequest
	case errors.Is(err, ErrNoContractAvailable):
		return OutcomeNoContract
	case errors.Is(err, ErrQuoteUnavailable):
		return OutcomeQuoteUnavailable
	case errors.Is(err, ErrFillTimeout):
		return OutcomeFillTimeout
	case errors.Is(err, ErrCancelled):
		return OutcomeCancelled
	case errors.Is(err, ErrGatewayRejected):
		return OutcomeGatewayRejected
	case errors.Is(err, ErrInvalidTick):
		return OutcomeInvalidTick
	}
	return OutcomeError
}
