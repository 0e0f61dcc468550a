package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrInvalidURL is returned for URLs that cannot be fetched at all.
var ErrInvalidURL = errors.New("invalid url")

// ErrorKind is the coarse class of a FetchError.
type ErrorKind string

const (
	KindHTTP       ErrorKind = "http"
	KindConnection ErrorKind = "connection"
)

// FetchError is the structured error surfaced by Fetcher.
type FetchError struct {
	Kind   ErrorKind
	Status int
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Kind == KindHTTP {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Reason returns the fine-grained error label: rate_limit, server_error,
// http_error, timeout or connection.
func (e *FetchError) Reason() string {
	return errorTypeLabel(e.Err)
}

// Retryable reports whether the failure is transient (429, 5xx, transport)
// rather than a logical miss such as a removed page.
func (e *FetchError) Retryable() bool {
	switch e.Reason() {
	case "rate_limit", "server_error", "timeout", "connection":
		return true
	}
	return false
}

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrRateLimited indicates the target rate-limited the request (HTTP 429).
type ErrRateLimited struct {
	Status int
}

func (e ErrRateLimited) Error() string {
	return fmt.Sprintf("rate_limited: http status %d", e.Status)
}

// ErrServer indicates a 5xx response.
type ErrServer struct {
	Status int
}

func (e ErrServer) Error() string {
	return fmt.Sprintf("server_error: http status %d", e.Status)
}

// ErrStatus indicates any other non-2xx response.
type ErrStatus struct {
	Status int
}

func (e ErrStatus) Error() string {
	return fmt.Sprintf("http status %d", e.Status)
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limit"
	}
	var server ErrServer
	if errors.As(err, &server) {
		return "server_error"
	}
	var status ErrStatus
	if errors.As(err, &status) {
		return "http_error"
	}
	return "other"
}

// classifyStatus maps a non-2xx status to its typed error.
func classifyStatus(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrRateLimited{Status: status}
	case status >= 500:
		return ErrServer{Status: status}
	default:
		return ErrStatus{Status: status}
	}
}

// classifyTransportError maps a failure without an HTTP response.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	return ErrConnection{Err: err}
}

func newHTTPError(url string, status int) *FetchError {
	return &FetchError{Kind: KindHTTP, Status: status, URL: url, Err: classifyStatus(status)}
}

func newConnectionError(url string, err error) *FetchError {
	return &FetchError{Kind: KindConnection, URL: url, Err: classifyTransportError(err)}
}
