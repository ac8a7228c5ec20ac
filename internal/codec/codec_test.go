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

package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string `cbor:"1,keyasint"`
	Count int64  `cbor:"2,keyasint"`
	Blob  []byte `cbor:"3,keyasint,omitempty"`
}

func TestCodec(t *testing.T) {
	t.Run("With round trip", func(t *testing.T) {
		in := &record{Name: "alice", Count: 42, Blob: []byte{1, 2}}
		data, err := Codec{}.Marshal(in)
		require.NoError(t, err)

		out := new(record)
		require.NoError(t, Codec{}.Unmarshal(data, out))
		assert.Equal(t, in, out)
		assert.Equal(t, "cbor", Codec{}.Name())
	})
	t.Run("With deterministic output", func(t *testing.T) {
		first, err := Marshal(map[string]int{"b": 2, "a": 1})
		require.NoError(t, err)
		second, err := Marshal(map[string]int{"a": 1, "b": 2})
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
	t.Run("With garbage input", func(t *testing.T) {
		out := new(record)
		assert.Error(t, Unmarshal([]byte{0xff, 0x00}, out))
	})
}
