package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrShoutoutLimit is returned when the per-session shout-out cap for an
	// item has been reached.
	ErrShoutoutLimit = errors.New("shoutout limit reached")

	// ErrNoUser is returned by operations that need a server-side user
	// identity when none has been established yet.
	ErrNoUser = errors.New("no user identity")

	// ErrFlyerShoutout is returned when a shout-out is attempted on a flyer.
	// Flyers count clicks instead.
	ErrFlyerShoutout = errors.New("flyers count clicks, not shoutouts")

	ErrInvalidDeepLink    = errors.New("invalid deep link")
	ErrUnknownContentType = errors.New("unknown content type")
)

// NetworkTransportError wraps connectivity, timeout and HTTP status failures.
type NetworkTransportError struct {
	Op  string
	Err error
}

func (e *NetworkTransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *NetworkTransportError) Unwrap() error { return e.Err }

// GraphQLResponseError is returned when the server answered with a non-empty
// errors list.
type GraphQLResponseError struct {
	Op       string
	Messages []string
}

func (e *GraphQLResponseError) Error() string {
	return fmt.Sprintf("%s: graphql: %s", e.Op, strings.Join(e.Messages, "; "))
}

// EmptyResultError is returned when a result was expected but none came back.
type EmptyResultError struct {
	What string
}

func (e *EmptyResultError) Error() string {
	return "empty result: " + e.What
}

// IsNoConnection reports whether err should be shown to the user as a
// "No Connection" state.
func IsNoConnection(err error) bool {
	var transport *NetworkTransportError
	var gql *GraphQLResponseError
	var empty *EmptyResultError
	return errors.As(err, &transport) || errors.As(err, &gql) || errors.As(err, &empty)
}
