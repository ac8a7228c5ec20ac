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
	"bytes"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/tochemey/dtoken/token"
)

// MasterKey is a secret used to sign token identifiers
type MasterKey struct {
	ID int32 `cbor:"1,keyasint"`
	// Expiry is the unix time in milliseconds after which the key is evicted
	Expiry int64  `cbor:"2,keyasint"`
	Secret []byte `cbor:"3,keyasint"`
}

// ExpiryTime returns Expiry as a time.Time
func (k *MasterKey) ExpiryTime() time.Time {
	return time.UnixMilli(k.Expiry)
}

func (k *MasterKey) clone() *MasterKey {
	return &MasterKey{ID: k.ID, Expiry: k.Expiry, Secret: bytes.Clone(k.Secret)}
}

// String never prints the secret
func (k *MasterKey) String() string {
	return fmt.Sprintf("MasterKey(id=%d, expiry=%s)", k.ID, k.ExpiryTime().UTC().Format(time.RFC3339))
}

// TokenInfo is an outstanding token: its identifier, the password issued
// with it and the date until which it is valid.
type TokenInfo struct {
	Identifier []byte `cbor:"1,keyasint"`
	// RenewDate is the unix time in milliseconds the token expires at
	// unless renewed
	RenewDate int64  `cbor:"2,keyasint"`
	Password  []byte `cbor:"3,keyasint"`
}

// RenewTime returns RenewDate as a time.Time
func (t *TokenInfo) RenewTime() time.Time {
	return time.UnixMilli(t.RenewDate)
}

func (t *TokenInfo) clone() *TokenInfo {
	return &TokenInfo{
		Identifier: bytes.Clone(t.Identifier),
		RenewDate:  t.RenewDate,
		Password:   bytes.Clone(t.Password),
	}
}

// Snapshot is the durable state of a Manager
type Snapshot struct {
	Keys     []*MasterKey
	Tokens   []*TokenInfo
	Sequence int64
}

// Stats is a point in time view of a Manager
type Stats struct {
	Active            bool
	OutstandingTokens int
	MasterKeys        int
	CurrentKeyID      int32
	Sequence          int64
}

// TokenKey returns the storage key of an encoded identifier
func TokenKey(identifier []byte) string {
	return base64.RawURLEncoding.EncodeToString(identifier)
}

// tokenKeyOf returns the storage key of an identifier
func tokenKeyOf(id *token.Identifier) string {
	return TokenKey(token.Encode(id))
}
