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
	"bytes"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tochemey/dtoken/errors"
)

// Version is the current identifier layout version.
const Version byte = 0

const (
	ownerField protowire.Number = iota + 1
	renewerField
	realUserField
	issueDateField
	maxDateField
	sequenceField
	keyIDField
	fieldCount = int(keyIDField)

	maxVarintSize = 10
	binaryLenSize = 5
)

// Identifier is the signed part of a delegation token.
// Timestamps are expressed in Unix milliseconds.
type Identifier struct {
	// Owner is the principal the token was issued for.
	Owner string
	// Renewer is the short name of the principal allowed to renew the token.
	// An empty renewer means the token cannot be renewed.
	Renewer string
	// RealUser is set when the token was requested through impersonation.
	RealUser string
	// IssueDate is when the token was issued.
	IssueDate int64
	// MaxDate is the hard limit past which the token cannot be renewed.
	MaxDate int64
	// SequenceNumber is unique per issuing secret manager.
	SequenceNumber int64
	// MasterKeyID is the id of the master key that signed the token.
	MasterKeyID int32
}

// IssueTime returns IssueDate as a time.Time
func (x *Identifier) IssueTime() time.Time {
	return time.UnixMilli(x.IssueDate)
}

// MaxTime returns MaxDate as a time.Time
func (x *Identifier) MaxTime() time.Time {
	return time.UnixMilli(x.MaxDate)
}

// Equal reports whether both identifiers carry the same fields.
func (x *Identifier) Equal(other *Identifier) bool {
	if x == nil || other == nil {
		return x == other
	}
	return *x == *other
}

// String returns a log friendly representation of the identifier
func (x *Identifier) String() string {
	return fmt.Sprintf("owner=%s, renewer=%s, realUser=%s, issueDate=%d, maxDate=%d, sequenceNumber=%d, masterKeyId=%d",
		x.Owner, x.Renewer, x.RealUser, x.IssueDate, x.MaxDate, x.SequenceNumber, x.MasterKeyID)
}

// Encode returns the canonical binary form of the identifier.
// The result is the message signed by the master key.
func Encode(id *Identifier) []byte {
	// version + tags + three length prefixes + four varints, all bounded
	size := 1 + fieldCount + 3*binaryLenSize + 4*maxVarintSize + len(id.Owner) + len(id.Renewer) + len(id.RealUser)
	buf := make([]byte, 0, size)
	buf = append(buf, Version)
	buf = protowire.AppendTag(buf, ownerField, protowire.BytesType)
	buf = protowire.AppendString(buf, id.Owner)
	buf = protowire.AppendTag(buf, renewerField, protowire.BytesType)
	buf = protowire.AppendString(buf, id.Renewer)
	buf = protowire.AppendTag(buf, realUserField, protowire.BytesType)
	buf = protowire.AppendString(buf, id.RealUser)
	buf = protowire.AppendTag(buf, issueDateField, protowire.VarintType)
	buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(id.IssueDate))
	buf = protowire.AppendTag(buf, maxDateField, protowire.VarintType)
	buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(id.MaxDate))
	buf = protowire.AppendTag(buf, sequenceField, protowire.VarintType)
	buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(id.SequenceNumber))
	buf = protowire.AppendTag(buf, keyIDField, protowire.VarintType)
	buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(int64(id.MasterKeyID)))
	return buf
}

// Decode parses bytes produced by Encode. Any deviation from the layout,
// non-minimal varints included, returns an error wrapping
// errors.ErrMalformedToken.
func Decode(data []byte) (*Identifier, error) {
	if len(data) == 0 {
		return nil, errors.NewErrMalformedToken("empty identifier")
	}

	if data[0] != Version {
		return nil, errors.NewErrMalformedToken(fmt.Sprintf("unknown identifier version %d", data[0]))
	}

	id := new(Identifier)
	rest := data[1:]
	expected := ownerField
	for len(rest) > 0 {
		if int(expected) > fieldCount {
			return nil, errors.NewErrMalformedToken(fmt.Sprintf("%d trailing bytes", len(rest)))
		}

		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return nil, errors.NewErrMalformedToken(protowire.ParseError(n).Error())
		}

		if num != expected {
			return nil, errors.NewErrMalformedToken(fmt.Sprintf("unexpected field #%d, want #%d", num, expected))
		}

		rest = rest[n:]
		switch num {
		case ownerField, renewerField, realUserField:
			if typ != protowire.BytesType {
				return nil, errors.NewErrMalformedToken(fmt.Sprintf("field #%d has wire type %d", num, typ))
			}

			value, m := protowire.ConsumeString(rest)
			if m < 0 {
				return nil, errors.NewErrMalformedToken(protowire.ParseError(m).Error())
			}

			switch num {
			case ownerField:
				id.Owner = value
			case renewerField:
				id.Renewer = value
			default:
				id.RealUser = value
			}
			rest = rest[m:]
		default:
			if typ != protowire.VarintType {
				return nil, errors.NewErrMalformedToken(fmt.Sprintf("field #%d has wire type %d", num, typ))
			}

			raw, m := protowire.ConsumeVarint(rest)
			if m < 0 {
				return nil, errors.NewErrMalformedToken(protowire.ParseError(m).Error())
			}

			value := protowire.DecodeZigZag(raw)
			switch num {
			case issueDateField:
				id.IssueDate = value
			case maxDateField:
				id.MaxDate = value
			case sequenceField:
				id.SequenceNumber = value
			default:
				if value < -1<<31 || value > 1<<31-1 {
					return nil, errors.NewErrMalformedToken("master key id overflows int32")
				}
				id.MasterKeyID = int32(value)
			}
			rest = rest[m:]
		}
		expected++
	}

	if int(expected) != fieldCount+1 {
		return nil, errors.NewErrMalformedToken(fmt.Sprintf("truncated identifier: missing field #%d", expected))
	}

	// only the canonical form is ever signed
	if !bytes.Equal(Encode(id), data) {
		return nil, errors.NewErrMalformedToken("non-canonical encoding")
	}

	return id, nil
}
