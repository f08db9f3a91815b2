package exception

import "errors"

var (
	ErrResolveDelisted         = errors.New("resolve: symbol delisted")
	ErrResolveAllRoutesFailed  = errors.New("resolve: all price routes failed")
	ErrResolveNothingRecovered = errors.New("resolve: no dust conversion succeeded")
	ErrResolveVerifyFailed     = errors.New("resolve: usd balance did not increase")
)
