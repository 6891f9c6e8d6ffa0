package execution

import "errors"

// Every failure returned by Executor.Execute wraps exactly one of these.
// All of them are recoverable at per-token granularity; ErrSigning on a
// well-formed decision points at a bug.
var (
	ErrInvalidDecision = errors.New("invalid decision")
	ErrGasEstimation   = errors.New("gas estimation failed")
	ErrNetwork         = errors.New("network error")
	ErrSigning         = errors.New("signing failed")
	ErrBroadcast       = errors.New("broadcast failed")
)

// Kind names the error class for logs and metrics labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidDecision):
		return "invalid_decision"
	case errors.Is(err, ErrGasEstimation):
		return "gas_estimation"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrSigning):
		return "signing"
	case errors.Is(err, ErrBroadcast):
		return "broadcast"
	default:
		return "unknown"
	}
}
