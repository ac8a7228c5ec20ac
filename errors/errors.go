// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedToken is returned when a token identifier cannot be decoded.
	ErrMalformedToken = errors.New("malformed token identifier")

	// ErrInvalidToken is returned when a token is unknown, expired, revoked,
	// carries a bad password or is presented by a principal that may not use it.
	ErrInvalidToken = errors.New("invalid token")

	// ErrUnknownLogicalIdentity is returned when a logical cluster identity
	// has no physical endpoint mapping in the local configuration.
	ErrUnknownLogicalIdentity = errors.New("unable to map logical nameservice URI")

	// ErrRoleState is returned by a coordinator that is not currently active.
	// Callers are expected to try another coordinator.
	ErrRoleState = errors.New("operation not supported by a non-active coordinator")

	// ErrRetriable is returned by a coordinator that will be able to serve the
	// call shortly, for instance while it is becoming active.
	ErrRetriable = errors.New("operation should be retried")

	// ErrUnreachable is returned when a coordinator cannot be reached or timed out.
	ErrUnreachable = errors.New("coordinator is unreachable")

	// ErrAccessDenied is returned when the acting principal is not authorized.
	ErrAccessDenied = errors.New("access denied")

	// ErrStoreClosed is returned when a secret store is used after Close.
	ErrStoreClosed = errors.New("secret store is closed")

	// ErrInvalidConfig is returned when a configuration fails validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoEndpoints is returned when a failover attempt has nothing to try.
	ErrNoEndpoints = errors.New("no coordinator endpoints")
)

// NewErrMalformedToken wraps a decoding failure with ErrMalformedToken.
func NewErrMalformedToken(reason string) error {
	return fmt.Errorf("%w: %s", ErrMalformedToken, reason)
}

// NewErrInvalidToken formats an ErrInvalidToken with the given reason.
func NewErrInvalidToken(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidToken, reason)
}

// NewErrInvalidTokenCause wraps a cause with ErrInvalidToken. The cause stays
// reachable through errors.Is and errors.As.
func NewErrInvalidTokenCause(cause error) error {
	return fmt.Errorf("%w: %w", ErrInvalidToken, cause)
}

// NewErrUnknownLogicalIdentity formats an ErrUnknownLogicalIdentity naming the unmapped URI.
func NewErrUnknownLogicalIdentity(uri string) error {
	return fmt.Errorf("%w '%s' to a coordinator: local configuration does not have a nameservice mapping for it", ErrUnknownLogicalIdentity, uri)
}

// NewErrRoleState formats an ErrRoleState for the given operation category and coordinator state.
func NewErrRoleState(category, state string) error {
	return fmt.Errorf("%w: operation category %s is not supported in state %s", ErrRoleState, category, state)
}

// NewErrRetriable formats an ErrRetriable with the given reason.
func NewErrRetriable(reason string) error {
	return fmt.Errorf("%w: %s", ErrRetriable, reason)
}

// NewErrUnreachable wraps a transport failure against the given endpoint with ErrUnreachable.
func NewErrUnreachable(endpoint string, cause error) error {
	if cause == nil {
		return fmt.Errorf("(endpoint=%s) %w", endpoint, ErrUnreachable)
	}
	return fmt.Errorf("(endpoint=%s) %w: %w", endpoint, ErrUnreachable, cause)
}

// NewErrAccessDenied formats an ErrAccessDenied with the given reason.
func NewErrAccessDenied(reason string) error {
	return fmt.Errorf("%w: %s", ErrAccessDenied, reason)
}

// NewErrInvalidConfig wraps a validation failure with ErrInvalidConfig.
func NewErrInvalidConfig(err error) error {
	return errors.Join(ErrInvalidConfig, err)
}

// SecurityError is the generic failure raised by an authentication layer
// around whatever went wrong underneath it.
type SecurityError struct {
	err error
}

// enforce compilation error
var _ error = (*SecurityError)(nil)

// NewSecurityError creates an instance of SecurityError
func NewSecurityError(err error) *SecurityError {
	return &SecurityError{err: err}
}

// Error implements the standard error interface
func (e *SecurityError) Error() string {
	return fmt.Sprintf("failed to obtain user group information: %v", e.err)
}

func (e *SecurityError) Unwrap() error {
	return e.err
}
