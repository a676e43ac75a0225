package powersystem

import "errors"

var (
	ErrInvalidParameter      = errors.New("invalid parameter")
	ErrDuplicateName         = errors.New("duplicate component name")
	ErrWrongBus              = errors.New("disconnector bus is not an endpoint of its line")
	ErrAlreadyAttached       = errors.New("host already attached to a network")
	ErrAlreadyOwned          = errors.New("component slot already taken")
	ErrMissingCircuitBreaker = errors.New("feeder line has no circuit breaker")
	ErrNoSlackBus            = errors.New("no slack bus")
	ErrMultipleSlackBus      = errors.New("more than one slack bus")
	ErrNotRadial             = errors.New("island is not radial")
	ErrNetworkKind           = errors.New("wrong parent network kind")
	ErrDisconnectedIsland    = errors.New("island is not connected")
)
