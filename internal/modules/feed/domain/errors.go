package domain

import "fmt"

// FetchErrorKind classifies feed fetch failures.
type FetchErrorKind string

const (
	FetchErrorNetwork    FetchErrorKind = "network"
	FetchErrorHTTPStatus FetchErrorKind = "http_status"
	FetchErrorMalformed  FetchErrorKind = "malformed"
)

// FetchError is returned by the fetcher when a feed cannot be
// retrieved or parsed. StatusCode is set only for HTTPStatus errors.
type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchErrorHTTPStatus:
		return fmt.Sprintf("fetch failed: unexpected HTTP status %d", e.StatusCode)
	case FetchErrorMalformed:
		return fmt.Sprintf("fetch failed: malformed feed document: %v", e.Err)
	default:
		return fmt.Sprintf("fetch failed: %v", e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// DispatchErrorKind classifies notification delivery failures.
type DispatchErrorKind string

const (
	DispatchErrorPermissionDenied DispatchErrorKind = "permission_denied"
	DispatchErrorChannelGone      DispatchErrorKind = "channel_gone"
	DispatchErrorRateLimited      DispatchErrorKind = "rate_limited"
	DispatchErrorUnknown          DispatchErrorKind = "unknown"
)

// DispatchError is returned when a single notification send fails. It
// never aborts the poll cycle it occurred in.
type DispatchError struct {
	Kind      DispatchErrorKind
	ChannelID string
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch to channel %s failed (%s): %v", e.ChannelID, e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// StoreErrorKind classifies feed store failures.
type StoreErrorKind string

const (
	StoreErrorUnavailable StoreErrorKind = "unavailable"
	StoreErrorCorrupt     StoreErrorKind = "corrupt"
)

// StoreError is returned by the feed store. A read failure is treated
// by callers as "no known state"; a write failure keeps the in-memory
// state for the next attempt.
type StoreError struct {
	Kind StoreErrorKind
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("feed store error (%s): %v", e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
