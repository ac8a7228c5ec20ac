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

// Package credentials holds the tokens a principal carries, indexed by
// token kind and service tag.
package credentials

import (
	"context"
	"fmt"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/tochemey/dtoken/resolver"
	"github.com/tochemey/dtoken/token"
)

type key struct {
	kind    string
	service string
}

// Credentials is the token cache of one principal. It is safe for
// concurrent use. Stored tokens are copies: mutating a token after adding
// or reading it never changes the cache.
type Credentials struct {
	principal string
	mu        sync.RWMutex
	tokens    map[key]*token.Token
}

// New creates an empty token cache for principal
func New(principal string) *Credentials {
	return &Credentials{
		principal: principal,
		tokens:    make(map[key]*token.Token),
	}
}

// Principal returns the name of the principal owning the cache
func (c *Credentials) Principal() string {
	return c.principal
}

// AddToken stores a copy of tok under (tok.Kind, tok.Service), replacing
// any token already held there.
func (c *Credentials) AddToken(tok *token.Token) {
	if tok == nil {
		return
	}
	c.mu.Lock()
	c.tokens[key{kind: tok.Kind, service: tok.Service}] = tok.Copy()
	c.mu.Unlock()
}

// Token returns a copy of the token held under (kind, service)
func (c *Credentials) Token(kind, service string) (*token.Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tok, ok := c.tokens[key{kind: kind, service: service}]
	if !ok {
		return nil, false
	}
	return tok.Copy(), true
}

// RemoveToken drops the token held under (kind, service)
func (c *Credentials) RemoveToken(kind, service string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{kind: kind, service: service}
	_, ok := c.tokens[k]
	delete(c.tokens, k)
	return ok
}

// Tokens returns copies of every held token ordered by kind then service
func (c *Credentials) Tokens() []*token.Token {
	c.mu.RLock()
	out := make([]*token.Token, 0, len(c.tokens))
	for _, tok := range c.tokens {
		out = append(out, tok.Copy())
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Service < out[j].Service
	})
	return out
}

// Len returns the number of held tokens
func (c *Credentials) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tokens)
}

// Select returns the token of the given kind tagged with service.
// A miss is reported as nil, never as an error.
func Select(c *Credentials, kind, service string) *token.Token {
	tok, _ := c.Token(kind, service)
	return tok
}

// Tagger computes the service tag of a physical endpoint
type Tagger interface {
	ServiceTagFor(ctx context.Context, address string, useIP bool) (string, error)
}

var _ Tagger = (*resolver.Resolver)(nil)

// CloneForLogicalIdentity copies the delegation token tagged with the
// logical identity's service tag once per physical endpoint, tagged with
// that endpoint's service tag. It is a no-op when the cache holds no token
// for the logical identity and is idempotent. A slot already holding a
// different credential is overwritten.
//
// Tags depend on useIP. Copies made under one addressing mode are not
// found under the other until this is called again.
func CloneForLogicalIdentity(ctx context.Context, c *Credentials, tagger Tagger, logical string, endpoints []string, useIP bool) error {
	logicalTag := resolver.ServiceTagForLogical(logical)
	original, ok := c.Token(token.DelegationKind, logicalTag)
	if !ok {
		return nil
	}

	seen := mapset.NewThreadUnsafeSet[string]()
	for _, endpoint := range endpoints {
		tag, err := tagger.ServiceTagFor(ctx, endpoint, useIP)
		if err != nil {
			return fmt.Errorf("failed to clone token for %s: %w", endpoint, err)
		}

		// two endpoints resolving to one tag only need a single copy
		if !seen.Add(tag) {
			continue
		}

		if existing, found := c.Token(token.DelegationKind, tag); found && existing.SameCredential(original) {
			continue
		}
		c.AddToken(original.WithService(tag))
	}
	return nil
}
