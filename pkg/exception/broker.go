package exception

import "errors"

var (
	ErrBrokerCallFailed       = errors.New("broker: call failed")
	ErrBrokerOrderRejected    = errors.New("broker: order rejected")
	ErrBrokerStateUnknown     = errors.New("broker: order state unknown after timeout")
	ErrBrokerPriceUnavailable = errors.New("broker: price unavailable")
)
