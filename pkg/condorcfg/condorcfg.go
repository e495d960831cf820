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

// Package condorcfg provides access to the HTCondor style configuration
// parameters that drive the authorization policy. Sources return the
// current value on every call: the policy deliberately re-reads its
// parameters per decision so that operator edits take effect on the very
// next flow, without a restart and without a cached snapshot.
package condorcfg

import (
	"bufio"
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/condorflow/condorflow/pkg/private/serrors"
)

// Parameter names consumed by the controller.
const (
	KeyBlockedUsers        = "BLOCKED_USERS"
	KeyBlockedUsersOutside = "BLOCKED_USERS_OUTSIDE"
	KeyWhitelistIP         = "WHITE_LIST_IP"
	KeyOracleHost          = "HTCONDOR_MODULE_HOST"
	KeyOraclePort          = "HTCONDOR_MODULE_PORT"
	KeyCoreSwitchID        = "CORE_SWITCH_ID"
	KeyCoreDropRules       = "CORE_DROP_RULES"
)

// ErrNotSet indicates that a parameter has no value.
var ErrNotSet = errors.New("parameter not set")

// Source looks up a single configuration parameter. Lookup must reflect
// the current state of the backing store on every call.
type Source interface {
	Lookup(key string) (string, error)
}

// List returns the comma separated list stored under key, with surrounding
// whitespace trimmed and empty elements removed. A missing parameter is an
// empty list, not an error.
func List(src Source, key string) ([]string, error) {
	v, err := src.Lookup(key)
	if errors.Is(err, ErrNotSet) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range strings.Split(v, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out, nil
}

// Set returns the list stored under key as a membership set.
func Set(src Source, key string) (map[string]struct{}, error) {
	list, err := List(src, key)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(list))
	for _, e := range list {
		set[e] = struct{}{}
	}
	return set, nil
}

// File is a Source backed by a condor_config style file of KEY = value
// lines. The file is re-read on every Lookup.
type File struct {
	Path string
}

// Lookup implements Source. The last assignment of a key wins, matching
// condor_config semantics.
func (f File) Lookup(key string) (string, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return "", serrors.Wrap("opening param file", err, "path", f.Path)
	}
	defer file.Close()

	value, found := "", false
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if strings.TrimSpace(name) == key {
			value, found = strings.TrimSpace(v), true
		}
	}
	if err := scanner.Err(); err != nil {
		return "", serrors.Wrap("reading param file", err, "path", f.Path)
	}
	if !found {
		return "", serrors.Join(ErrNotSet, nil, "key", key)
	}
	return value, nil
}

// Map is an in-memory Source, safe for concurrent use. It is mainly used
// in tests.
type Map struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMap creates a Map source with a copy of the given values.
func NewMap(values map[string]string) *Map {
	m := &Map{values: make(map[string]string, len(values))}
	for k, v := range values {
		m.values[k] = v
	}
	return m
}

// Set stores a parameter.
func (m *Map) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

// Delete removes a parameter.
func (m *Map) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
}

// Lookup implements Source.
func (m *Map) Lookup(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", serrors.Join(ErrNotSet, nil, "key", key)
	}
	return v, nil
}
