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

package testkit

import (
	"time"

	"github.com/tochemey/dtoken/log"
	"github.com/tochemey/dtoken/secretmanager"
)

// Option configures a Cluster
type Option interface {
	// Apply sets the Option value of a config.
	Apply(cluster *Cluster)
}

var _ Option = OptionFunc(nil)

// OptionFunc implements the Option interface.
type OptionFunc func(*Cluster)

// Apply applies the Cluster's option
func (f OptionFunc) Apply(c *Cluster) {
	f(c)
}

// WithNameservice sets the name of the logical cluster identity the
// coordinators are registered under. Defaults to DefaultNameservice.
func WithNameservice(name string) Option {
	return OptionFunc(func(c *Cluster) {
		c.nameservice = name
	})
}

// WithLogger sets the logger shared by the coordinators
func WithLogger(logger log.Logger) Option {
	return OptionFunc(func(c *Cluster) {
		c.logger = logger
	})
}

// WithStore sets the secret store shared by the coordinators.
// An in-memory store is used by default.
func WithStore(store secretmanager.Store) Option {
	return OptionFunc(func(c *Cluster) {
		c.store = store
	})
}

// WithAuthToLocal sets the principal mapping rules of every coordinator
func WithAuthToLocal(rules string) Option {
	return OptionFunc(func(c *Cluster) {
		c.authToLocal = rules
	})
}

// WithManagerOptions appends secret manager options applied to every coordinator
func WithManagerOptions(opts ...secretmanager.Option) Option {
	return OptionFunc(func(c *Cluster) {
		c.managerOpts = append(c.managerOpts, opts...)
	})
}

// WithStartTimeout bounds how long starting or stopping the cluster may take
func WithStartTimeout(timeout time.Duration) Option {
	return OptionFunc(func(c *Cluster) {
		c.startTimeout = timeout
	})
}
