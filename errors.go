package routed

import "fmt"

// routeErrorKind names a non-fatal drop/deny condition, per §7.
type routeErrorKind int

const (
	errMalformedJSON routeErrorKind = iota
	errUnknownNeighbor
	errUnknownType
	errUnknownPrefix
	errNoRoute
	errPolicyDenied
)

var errorKindDesc = map[routeErrorKind]string{
	errMalformedJSON:   "malformed JSON",
	errUnknownNeighbor: "unknown neighbor",
	errUnknownType:     "unknown message type",
	errUnknownPrefix:   "withdraw for unknown prefix",
	errNoRoute:         "no covering route",
	errPolicyDenied:    "forward disallowed by export policy",
}

// routeError is the module's non-fatal error wrapper. None of its kinds are
// fatal after startup; the dispatcher logs and continues.
type routeError struct {
	kind  routeErrorKind
	cause error
}

func newRouteError(kind routeErrorKind, cause error) *routeError {
	return &routeError{kind: kind, cause: cause}
}

func (e *routeError) Error() string {
	desc := errorKindDesc[e.kind]
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", desc, e.cause)
	}
	return desc
}

func (e *routeError) Unwrap() error {
	return e.cause
}
