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

package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tochemey/dtoken/errors"
)

func TestIdentifier(t *testing.T) {
	t.Run("With round trip", func(t *testing.T) {
		identifiers := []*Identifier{
			{},
			{
				Owner:          "JobTracker/foo.com@FOO.COM",
				Renewer:        "JobTracker",
				RealUser:       "oozie",
				IssueDate:      1_700_000_000_000,
				MaxDate:        1_700_604_800_000,
				SequenceNumber: 42,
				MasterKeyID:    7,
			},
			{
				Owner:          "ü-ñ",
				IssueDate:      -1,
				MaxDate:        1<<63 - 1,
				SequenceNumber: -9,
				MasterKeyID:    -1 << 31,
			},
		}

		for _, id := range identifiers {
			encoded := Encode(id)
			decoded, err := Decode(encoded)
			require.NoError(t, err)
			assert.True(t, id.Equal(decoded))
			assert.Equal(t, encoded, Encode(decoded))
		}
	})
	t.Run("With deterministic encoding", func(t *testing.T) {
		id := &Identifier{Owner: "alice", Renewer: "bob", SequenceNumber: 1, MasterKeyID: 2}
		assert.Equal(t, Encode(id), Encode(&Identifier{Owner: "alice", Renewer: "bob", SequenceNumber: 1, MasterKeyID: 2}))
		assert.NotEqual(t, Encode(id), Encode(&Identifier{Owner: "alice", Renewer: "bob", SequenceNumber: 2, MasterKeyID: 2}))
	})
	t.Run("With malformed bytes", func(t *testing.T) {
		valid := Encode(&Identifier{Owner: "alice", Renewer: "bob", SequenceNumber: 1})

		cases := map[string][]byte{
			"empty":           nil,
			"unknown version": append([]byte{9}, valid[1:]...),
			"truncated":       valid[:len(valid)-1],
			"missing fields":  valid[:8],
			"trailing bytes":  append(append([]byte{}, valid...), protowire.AppendTag(nil, 8, protowire.VarintType)...),
			"wrong wire type": append([]byte{Version}, protowire.AppendVarint(protowire.AppendTag(nil, 1, protowire.VarintType), 1)...),
			"reordered":       append([]byte{Version}, protowire.AppendString(protowire.AppendTag(nil, 2, protowire.BytesType), "bob")...),
			"padded varint":   append(append([]byte{}, valid[:len(valid)-1]...), 0x80, 0x00),
		}

		for name, data := range cases {
			_, err := Decode(data)
			assert.ErrorIs(t, err, errors.ErrMalformedToken, name)
		}

		// the padded key id still parses as zero, only the canonical check rejects it
		_, err := Decode(append(append([]byte{}, valid[:len(valid)-1]...), 0x80, 0x00))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "non-canonical")
	})
	t.Run("With string form", func(t *testing.T) {
		id := &Identifier{Owner: "alice", Renewer: "JobTracker", SequenceNumber: 3}
		assert.Contains(t, id.String(), "owner=alice")
		assert.Contains(t, id.String(), "sequenceNumber=3")
		assert.Equal(t, int64(0), id.IssueTime().UnixMilli())
	})
}

func TestToken(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	id := &Identifier{Owner: "alice", Renewer: "JobTracker", SequenceNumber: 1, MasterKeyID: 1}
	encoded := Encode(id)
	password := ComputePassword(encoded, key)

	t.Run("With password verification", func(t *testing.T) {
		assert.True(t, VerifyPassword(encoded, password, key))
		assert.False(t, VerifyPassword(encoded, password, []byte("another key")))
		assert.False(t, VerifyPassword(Encode(&Identifier{Owner: "mallory"}), password, key))
		assert.Len(t, password, 32)
	})
	t.Run("With copy and service tags", func(t *testing.T) {
		tok := New(id, password)
		require.Equal(t, DelegationKind, tok.Kind)
		require.Empty(t, tok.Service)

		tagged := tok.WithService("ha-hdfs:my-ha-uri")
		assert.Equal(t, "ha-hdfs:my-ha-uri", tagged.Service)
		assert.Empty(t, tok.Service)
		assert.True(t, tok.SameCredential(tagged))
		assert.False(t, tok.SameCredential(nil))

		tagged.Password[0] ^= 0xff
		assert.False(t, tok.SameCredential(tagged))
	})
	t.Run("With decode identifier", func(t *testing.T) {
		tok := New(id, password)
		decoded, err := tok.DecodeIdentifier()
		require.NoError(t, err)
		assert.True(t, id.Equal(decoded))
		assert.NotContains(t, tok.String(), string(password))
		assert.Contains(t, tok.String(), "owner=alice")
	})
	t.Run("With URL string", func(t *testing.T) {
		tok := New(id, password).WithService("127.0.0.1:8020")
		decoded, err := DecodeFromURLString(tok.EncodeToURLString())
		require.NoError(t, err)
		assert.Equal(t, tok, decoded)

		_, err = DecodeFromURLString("%%%")
		assert.ErrorIs(t, err, errors.ErrMalformedToken)

		_, err = DecodeFromURLString("")
		assert.ErrorIs(t, err, errors.ErrMalformedToken)
	})
}
