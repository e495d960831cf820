// Copyright 2026 The Condorflow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package classad parses HTCondor classad attribute records. Only the
// subset the controller consumes is supported: flat records of
// name = value pairs, either in bracketed new-classad form
// ("[ Owner = \"alice\"; JobId = 12 ]") or one pair per line. Values stay
// strings; quoted strings are unescaped, everything else is kept verbatim.
package classad

import (
	"strings"

	"github.com/condorflow/condorflow/pkg/private/serrors"
)

// Classad is a parsed attribute record.
type Classad map[string]string

// Lookup returns the value of the named attribute.
func (c Classad) Lookup(name string) (string, bool) {
	v, ok := c[name]
	return v, ok
}

// Parse parses an attribute record.
func Parse(raw string) (Classad, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "[") {
		if !strings.HasSuffix(s, "]") {
			return nil, serrors.New("unterminated classad record")
		}
		s = s[1 : len(s)-1]
	}
	ad := make(Classad)
	for _, entry := range splitEntries(s) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, value, ok := cutAssignment(entry)
		if !ok {
			return nil, serrors.New("malformed classad entry", "entry", entry)
		}
		if !validName(name) {
			return nil, serrors.New("invalid classad attribute name", "name", name)
		}
		v, err := parseValue(value)
		if err != nil {
			return nil, serrors.Wrap("parsing classad value", err, "name", name)
		}
		ad[name] = v
	}
	if len(ad) == 0 {
		return nil, serrors.New("empty classad record")
	}
	return ad, nil
}

// splitEntries splits on entry separators, ignoring those inside quoted
// strings. Newlines separate entries just like semicolons so that both
// record forms parse.
func splitEntries(s string) []string {
	var entries []string
	var cur strings.Builder
	inQuote := false
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
			cur.WriteRune(r)
		case r == '\\' && inQuote:
			escaped = true
			cur.WriteRune(r)
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case (r == ';' || r == '\n') && !inQuote:
			entries = append(entries, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	entries = append(entries, cur.String())
	return entries
}

// cutAssignment splits "name = value" at the first '=' outside quotes.
func cutAssignment(entry string) (string, string, bool) {
	i := strings.IndexByte(entry, '=')
	if i < 0 {
		return "", "", false
	}
	return strings.TrimSpace(entry[:i]), strings.TrimSpace(entry[i+1:]), true
}

func parseValue(v string) (string, error) {
	if !strings.HasPrefix(v, "\"") {
		return v, nil
	}
	if len(v) < 2 || !strings.HasSuffix(v, "\"") {
		return "", serrors.New("unterminated string literal", "value", v)
	}
	body := v[1 : len(v)-1]
	var out strings.Builder
	escaped := false
	for _, r := range body {
		switch {
		case escaped:
			escaped = false
			out.WriteRune(r)
		case r == '\\':
			escaped = true
		case r == '"':
			return "", serrors.New("unescaped quote in string literal", "value", v)
		default:
			out.WriteRune(r)
		}
	}
	if escaped {
		return "", serrors.New("dangling escape in string literal", "value", v)
	}
	return out.String(), nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '_':
		case i > 0 && (r >= '0' && r <= '9' || r == '.'):
		default:
			return false
		}
	}
	return true
}
