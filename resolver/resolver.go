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

// Package resolver maps a logical cluster identity to its ordered physical
// coordinator endpoints and computes the service tags credentials are
// indexed by.
//
// A logical identity is written as a URI such as hdfs://my-ha-uri/ or as
// the bare nameservice name. Its service tag is ha-<scheme>:<nameservice>.
// A physical endpoint tag is ip:port in IP mode and the lower-cased
// host:port in host mode.
package resolver

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"slices"
	"sort"
	"strconv"
	"strings"

	gerrors "github.com/tochemey/dtoken/errors"
)

const (
	// DefaultScheme is assumed when a logical identity has no scheme
	DefaultScheme = "hdfs"

	// logicalTagPrefix marks service tags that name a logical identity
	logicalTagPrefix = "ha-"
)

// LookupFunc resolves a host name to its addresses
type LookupFunc func(ctx context.Context, host string) ([]net.IP, error)

// Option configures a Resolver
type Option func(*Resolver)

// WithLookup overrides host resolution used in IP mode
func WithLookup(lookup LookupFunc) Option {
	return func(r *Resolver) {
		r.lookup = lookup
	}
}

// Resolver is an immutable view of the nameservice configuration
type Resolver struct {
	nameservices map[string][]string
	lookup       LookupFunc
}

// New creates a Resolver from a nameservice to endpoints mapping.
// The mapping is copied; nameservices with no endpoint are ignored.
func New(nameservices map[string][]string, opts ...Option) *Resolver {
	r := &Resolver{
		nameservices: make(map[string][]string, len(nameservices)),
		lookup:       lookupIP,
	}

	for name, endpoints := range nameservices {
		if len(endpoints) == 0 {
			continue
		}
		r.nameservices[name] = slices.Clone(endpoints)
	}

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Nameservices returns the configured nameservice names, sorted
func (r *Resolver) Nameservices() []string {
	names := make([]string, 0, len(r.nameservices))
	for name := range r.nameservices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsLogical reports whether uri names a configured nameservice
func (r *Resolver) IsLogical(uri string) bool {
	_, host, err := ParseLogical(uri)
	if err != nil {
		return false
	}
	_, ok := r.nameservices[host]
	return ok
}

// PhysicalEndpoints returns the ordered endpoints of a logical identity.
// The returned slice belongs to the caller.
func (r *Resolver) PhysicalEndpoints(logical string) ([]string, error) {
	_, host, err := ParseLogical(logical)
	if err != nil {
		return nil, gerrors.NewErrUnknownLogicalIdentity(logical)
	}

	endpoints, ok := r.nameservices[host]
	if !ok {
		return nil, gerrors.NewErrUnknownLogicalIdentity(logical)
	}
	return slices.Clone(endpoints), nil
}

// ServiceTagFor canonicalizes a physical endpoint into its service tag.
// For a fixed lookup the result depends only on (address, useIP).
func (r *Resolver) ServiceTagFor(ctx context.Context, address string, useIP bool) (string, error) {
	host, port, err := net.SplitHostPort(strings.TrimSpace(address))
	if err != nil {
		return "", fmt.Errorf("invalid endpoint address %q: %w", address, err)
	}

	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return "", fmt.Errorf("invalid endpoint port %q: %w", address, err)
	}

	// host names are case-insensitive in both modes
	host = strings.ToLower(host)
	if !useIP {
		return net.JoinHostPort(host, port), nil
	}

	if ip := net.ParseIP(host); ip != nil {
		return net.JoinHostPort(ip.String(), port), nil
	}

	ips, err := r.lookup(ctx, host)
	if err != nil {
		return "", fmt.Errorf("unable to resolve endpoint host %q: %w", host, err)
	}

	if len(ips) == 0 {
		return "", fmt.Errorf("unable to resolve endpoint host %q: no address", host)
	}
	return net.JoinHostPort(preferIPv4(ips).String(), port), nil
}

// ServiceTagForLogical returns the service tag of a logical identity,
// for instance ha-hdfs:my-ha-uri for hdfs://my-ha-uri/.
func ServiceTagForLogical(logical string) string {
	scheme, host, err := ParseLogical(logical)
	if err != nil {
		return logicalTagPrefix + DefaultScheme + ":" + logical
	}
	return logicalTagPrefix + scheme + ":" + host
}

// IsLogicalServiceTag reports whether tag was built by ServiceTagForLogical
func IsLogicalServiceTag(tag string) bool {
	_, ok := LogicalFromServiceTag(tag)
	return ok
}

// LogicalFromServiceTag recovers the logical URI a service tag names
func LogicalFromServiceTag(tag string) (string, bool) {
	rest, ok := strings.CutPrefix(tag, logicalTagPrefix)
	if !ok {
		return "", false
	}

	scheme, host, ok := strings.Cut(rest, ":")
	if !ok || scheme == "" || host == "" {
		return "", false
	}
	return scheme + "://" + host, true
}

// ParseLogical splits a logical identity into scheme and nameservice
func ParseLogical(logical string) (scheme, host string, err error) {
	logical = strings.TrimSpace(logical)
	if logical == "" {
		return "", "", fmt.Errorf("empty logical identity")
	}

	if !strings.Contains(logical, "://") {
		return DefaultScheme, strings.TrimSuffix(logical, "/"), nil
	}

	parsed, err := url.Parse(logical)
	if err != nil {
		return "", "", err
	}

	if parsed.Host == "" {
		return "", "", fmt.Errorf("logical identity %q has no authority", logical)
	}

	// a logical authority never carries a port
	if parsed.Port() != "" {
		return "", "", fmt.Errorf("logical identity %q carries a port", logical)
	}
	return parsed.Scheme, parsed.Host, nil
}

func lookupIP(ctx context.Context, host string) ([]net.IP, error) {
	return net.DefaultResolver.LookupIP(ctx, "ip", host)
}

func preferIPv4(ips []net.IP) net.IP {
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4
		}
	}
	return ips[0]
}
