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

package secretmanager

import (
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/tochemey/dtoken/internal/clock"
	"github.com/tochemey/dtoken/log"
	"github.com/tochemey/dtoken/principal"
)

const (
	// DefaultKeyUpdateInterval is how often a new master key is rolled
	DefaultKeyUpdateInterval = 24 * time.Hour
	// DefaultMaxLifetime is how long a token can be renewed for
	DefaultMaxLifetime = 7 * 24 * time.Hour
	// DefaultRenewInterval is how long a token stays valid after issue or renewal
	DefaultRenewInterval = 24 * time.Hour
	// DefaultRemoverScanInterval is how often expired tokens and keys are swept
	DefaultRemoverScanInterval = time.Hour

	defaultPersistRetries = 5
)

// Option configures a Manager
type Option interface {
	// Apply sets the Option value of a Manager.
	Apply(*Manager)
}

var _ Option = OptionFunc(nil)

// OptionFunc implements the Option interface.
type OptionFunc func(*Manager)

// Apply implements Option
func (f OptionFunc) Apply(m *Manager) {
	f(m)
}

// WithKeyUpdateInterval sets how often the master key is rotated
func WithKeyUpdateInterval(interval time.Duration) Option {
	return OptionFunc(func(m *Manager) {
		m.keyUpdateInterval = interval
	})
}

// WithMaxLifetime sets the maximum lifetime of a token. It is also the
// grace period a retired master key is kept for.
func WithMaxLifetime(lifetime time.Duration) Option {
	return OptionFunc(func(m *Manager) {
		m.maxLifetime = lifetime
	})
}

// WithRenewInterval sets how long a token stays valid after issue or renewal
func WithRenewInterval(interval time.Duration) Option {
	return OptionFunc(func(m *Manager) {
		m.renewInterval = interval
	})
}

// WithRemoverScanInterval sets how often expired state is swept
func WithRemoverScanInterval(interval time.Duration) Option {
	return OptionFunc(func(m *Manager) {
		m.removerScanInterval = interval
	})
}

// WithClock sets the time source
func WithClock(c clock.Clock) Option {
	return OptionFunc(func(m *Manager) {
		m.clock = c
	})
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return OptionFunc(func(m *Manager) {
		m.logger = logger
	})
}

// WithMeterProvider sets the provider metrics are recorded with
func WithMeterProvider(provider metric.MeterProvider) Option {
	return OptionFunc(func(m *Manager) {
		m.meterProvider = provider
	})
}

// WithMapper sets the rules used to shorten renewer and canceller names
func WithMapper(mapper *principal.Mapper) Option {
	return OptionFunc(func(m *Manager) {
		m.mapper = mapper
	})
}

// WithPersistRetries sets how many times a Store write is attempted
func WithPersistRetries(retries int) Option {
	return OptionFunc(func(m *Manager) {
		m.persistRetries = retries
	})
}
