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

package classad_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/condorflow/condorflow/pkg/classad"
)

func TestParse(t *testing.T) {
	testCases := map[string]struct {
		input     string
		want      classad.Classad
		assertErr assert.ErrorAssertionFunc
	}{
		"bracketed record": {
			input: `[ Owner = "alice"; ClusterId = 12; JobStatus = 2 ]`,
			want: classad.Classad{
				"Owner":     "alice",
				"ClusterId": "12",
				"JobStatus": "2",
			},
			assertErr: assert.NoError,
		},
		"line separated record": {
			input:     "Owner = \"bob\"\nRemoteHost = \"slot1@exec-3\"",
			want:      classad.Classad{"Owner": "bob", "RemoteHost": "slot1@exec-3"},
			assertErr: assert.NoError,
		},
		"escaped quote in string": {
			input:     `Cmd = "/bin/echo \"hi\""`,
			want:      classad.Classad{"Cmd": `/bin/echo "hi"`},
			assertErr: assert.NoError,
		},
		"semicolon inside string": {
			input:     `[ Args = "a;b"; Owner = "carol" ]`,
			want:      classad.Classad{"Args": "a;b", "Owner": "carol"},
			assertErr: assert.NoError,
		},
		"unquoted expression kept verbatim": {
			input:     `Requirements = (Arch == "X86_64")`,
			want:      classad.Classad{"Requirements": `(Arch == "X86_64")`},
			assertErr: assert.NoError,
		},
		"last assignment wins": {
			input:     "Owner = \"alice\"\nOwner = \"bob\"",
			want:      classad.Classad{"Owner": "bob"},
			assertErr: assert.NoError,
		},
		"empty record": {
			input:     "[ ]",
			assertErr: assert.Error,
		},
		"empty input": {
			input:     "",
			assertErr: assert.Error,
		},
		"unterminated record": {
			input:     `[ Owner = "alice"`,
			assertErr: assert.Error,
		},
		"entry without assignment": {
			input:     "[ Owner ]",
			assertErr: assert.Error,
		},
		"invalid attribute name": {
			input:     `[ 1Owner = "alice" ]`,
			assertErr: assert.Error,
		},
		"unterminated string": {
			input:     `Owner = "alice`,
			assertErr: assert.Error,
		},
		"dangling escape": {
			input:     `Owner = "alice\"`,
			assertErr: assert.Error,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			got, err := classad.Parse(tc.input)
			tc.assertErr(t, err)
			if err != nil {
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLookup(t *testing.T) {
	ad, err := classad.Parse(`[ Owner = "alice"; ClusterId = 12 ]`)
	require.NoError(t, err)

	owner, ok := ad.Lookup("Owner")
	assert.True(t, ok)
	assert.Equal(t, "alice", owner)

	_, ok = ad.Lookup("ProcId")
	assert.False(t, ok)
}
