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

// Package token defines the delegation token identifier, its binary layout
// and the password derivation used to sign it.
//
// An identifier is encoded as a single version byte followed by the
// identifier fields in a fixed order using the protobuf wire primitives:
//
//	┌─────────┬───────┬─────────┬──────────┬───────────┬─────────┬──────────┬────────┐
//	│ version │ owner │ renewer │ realUser │ issueDate │ maxDate │ sequence │ key id │
//	│ 1 byte  │ #1 LEN│ #2 LEN  │ #3 LEN   │ #4 VARINT │ #5 VAR  │ #6 VAR   │ #7 VAR │
//	└─────────┴───────┴─────────┴──────────┴───────────┴─────────┴──────────┴────────┘
//
// Every field is always written, so the encoding of a given identifier is
// unique and Decode(Encode(id)) == id.
package token
