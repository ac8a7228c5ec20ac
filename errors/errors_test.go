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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrors(t *testing.T) {
	t.Run("With invalid token", func(t *testing.T) {
		err := NewErrInvalidToken("token is expired")
		require.EqualError(t, err, "invalid token: token is expired")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("With invalid token wrapping role state", func(t *testing.T) {
		err := NewErrInvalidTokenCause(NewErrRoleState("READ", "standby"))
		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.ErrorIs(t, err, ErrRoleState)
		assert.Contains(t, err.Error(), "operation category READ is not supported in state standby")
	})
	t.Run("With unknown logical identity", func(t *testing.T) {
		err := NewErrUnknownLogicalIdentity("hdfs://my-ha-uri")
		assert.ErrorIs(t, err, ErrUnknownLogicalIdentity)
		assert.Contains(t, err.Error(), "unable to map logical nameservice URI 'hdfs://my-ha-uri'")
	})
	t.Run("With unreachable", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := NewErrUnreachable("127.0.0.1:8020", cause)
		assert.ErrorIs(t, err, ErrUnreachable)
		assert.ErrorIs(t, err, cause)
		assert.ErrorIs(t, NewErrUnreachable("127.0.0.1:8020", nil), ErrUnreachable)
	})
	t.Run("With security error", func(t *testing.T) {
		cause := NewErrInvalidTokenCause(NewErrRoleState("READ", "standby"))
		err := NewSecurityError(cause)
		assert.ErrorIs(t, err, ErrRoleState)
		assert.ErrorIs(t, err.Unwrap(), ErrInvalidToken)
		assert.Contains(t, err.Error(), "failed to obtain user group information")
	})
	t.Run("With invalid config", func(t *testing.T) {
		err := NewErrInvalidConfig(errors.New("max lifetime must be positive"))
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Contains(t, err.Error(), "max lifetime must be positive")
	})
	t.Run("With retriable", func(t *testing.T) {
		err := NewErrRetriable("coordinator is becoming active")
		assert.ErrorIs(t, err, ErrRetriable)
		assert.EqualError(t, err, "operation should be retried: coordinator is becoming active")
	})
	t.Run("With access denied", func(t *testing.T) {
		err := NewErrAccessDenied("client is not the renewer")
		assert.ErrorIs(t, err, ErrAccessDenied)
		assert.EqualError(t, err, "access denied: client is not the renewer")
	})
}
