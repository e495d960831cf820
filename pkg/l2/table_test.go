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

package l2_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/condorflow/condorflow/pkg/l2"
	"github.com/condorflow/condorflow/pkg/private/xtest"
)

func TestDecide(t *testing.T) {
	hostA := "02:00:00:00:00:0a"
	hostB := "02:00:00:00:00:0b"

	testCases := map[string]struct {
		learn  map[string]uint16
		dst    string
		inPort uint16
		want   l2.Decision
	}{
		"unknown destination floods": {
			learn:  map[string]uint16{hostA: 1},
			dst:    hostB,
			inPort: 1,
			want:   l2.Decision{Verdict: l2.Flood},
		},
		"known destination forwards on learned port": {
			learn:  map[string]uint16{hostA: 1, hostB: 2},
			dst:    hostB,
			inPort: 1,
			want:   l2.Decision{Verdict: l2.Forward, Port: 2},
		},
		"destination on ingress port drops": {
			learn:  map[string]uint16{hostB: 3},
			dst:    hostB,
			inPort: 3,
			want:   l2.Decision{Verdict: l2.Drop, Port: 3},
		},
		"empty table floods": {
			dst:    hostA,
			inPort: 1,
			want:   l2.Decision{Verdict: l2.Flood},
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			table := l2.NewTable()
			for mac, port := range tc.learn {
				table.Learn(xtest.MustParseMAC(t, mac), port)
			}
			got := table.Decide(xtest.MustParseMAC(t, tc.dst), tc.inPort)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLearnLastWriteWins(t *testing.T) {
	table := l2.NewTable()
	mac := xtest.MustParseMAC(t, "02:00:00:00:00:0a")

	table.Learn(mac, 1)
	table.Learn(mac, 4)

	port, ok := table.Lookup(mac)
	assert.True(t, ok)
	assert.Equal(t, uint16(4), port)
	assert.Equal(t, 1, table.Len())

	got := table.Decide(mac, 1)
	assert.Equal(t, l2.Decision{Verdict: l2.Forward, Port: 4}, got)
}
