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

package serrors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/condorflow/condorflow/pkg/private/serrors"
)

func TestNew(t *testing.T) {
	err := serrors.New("oracle refused", "ip", "10.0.0.7", "attempt", 2)
	assert.Equal(t, "oracle refused {attempt=2; ip=10.0.0.7}", err.Error())

	plain := serrors.New("oracle refused")
	assert.Equal(t, "oracle refused", plain.Error())
	assert.NotErrorIs(t, err, plain)
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := serrors.Wrap("resolving owner", cause, "ip", "10.0.0.7")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "resolving owner {ip=10.0.0.7}: connection reset", err.Error())

	// Wrapping twice keeps the full chain visible to errors.Is.
	outer := serrors.Wrap("deciding flow", err)
	assert.ErrorIs(t, outer, cause)
	assert.ErrorIs(t, outer, err)
}

func TestJoin(t *testing.T) {
	sentinel := errors.New("parameter not set")
	cause := errors.New("read failed")

	testCases := map[string]struct {
		err    error
		cause  error
		isErrs []error
		want   string
	}{
		"sentinel only": {
			err:    sentinel,
			isErrs: []error{sentinel},
			want:   "parameter not set {key=BLOCKED_USERS}",
		},
		"sentinel and cause": {
			err:    sentinel,
			cause:  cause,
			isErrs: []error{sentinel, cause},
			want:   "parameter not set {key=BLOCKED_USERS}: read failed",
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			err := serrors.Join(tc.err, tc.cause, "key", "BLOCKED_USERS")
			for _, target := range tc.isErrs {
				assert.ErrorIs(t, err, target)
			}
			assert.Equal(t, tc.want, err.Error())
		})
	}

	assert.NoError(t, serrors.Join(nil, nil))
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, serrors.IsTimeout(serrors.Wrap("request", timeoutError{})))
	assert.False(t, serrors.IsTimeout(serrors.New("request failed")))
}

type timeoutError struct{}

func (timeoutError) Error() string { return "deadline exceeded" }
func (timeoutError) Timeout() bool { return true }
