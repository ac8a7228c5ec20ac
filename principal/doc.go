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

// Package principal maps long Kerberos-style principal names
// (primary/instance@REALM) to the short names tokens are checked against.
//
// Rules follow the auth_to_local syntax:
//
//	RULE:[n:format](regex)s/pattern/replacement/[g][/L]
//	DEFAULT
//
// A RULE applies to names with exactly n components. format builds the
// candidate string from $0 (realm), $1 (primary) and $2 (instance); the
// candidate must fully match regex, then the sed-like substitution is
// applied. DEFAULT maps names of the default realm to their primary.
// Rules are tried in order and the first one that applies wins.
//
// Mapping is a pure function. It is applied once at the RPC boundary and
// the resulting short name is what flows through the secret manager.
package principal
