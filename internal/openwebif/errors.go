// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package openwebif

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	ErrNotFound            = errors.New("upstream: resource not found")
	ErrUpstreamUnavailable = errors.New("upstream: host unreachable or transport failure")
	ErrUpstreamError       = errors.New("upstream: internal error (5xx)")
	ErrUpstreamBadResponse = errors.New("upstream: invalid response format or malformed data")
	ErrTimeout             = errors.New("upstream: request timed out")
)

// OWIError wraps a sentinel with request context.
type OWIError struct {
	Sentinel  error
	Operation string
	Status    int
	Err       error
}

func (e *OWIError) Error() string {
	msg := fmt.Sprintf("openwebif: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *OWIError) Unwrap() error {
	return e.Sentinel
}

// classifyTransport maps a client.Do error to a sentinel.
func classifyTransport(op string, err error) error {
	sentinel := ErrUpstreamUnavailable
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		sentinel = ErrTimeout
	}
	return &OWIError{Sentinel: sentinel, Operation: op, Err: err}
}

// classifyStatus maps a non-2xx status to a sentinel.
func classifyStatus(op string, status int) error {
	sentinel := ErrUpstreamBadResponse
	switch {
	case status == http.StatusNotFound:
		sentinel = ErrNotFound
	case status >= 500:
		sentinel = ErrUpstreamError
	}
	return &OWIError{Sentinel: sentinel, Operation: op, Status: status}
}

// countsAgainstBreaker reports whether err indicates an unhealthy receiver.
func countsAgainstBreaker(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrUpstreamError) || errors.Is(err, ErrTimeout)
}
