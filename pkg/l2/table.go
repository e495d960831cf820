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

// Package l2 implements MAC learning and the plain learning-switch
// forwarding decision.
package l2

import (
	"net"
)

// Verdict is the forwarding outcome for a destination MAC.
type Verdict int

const (
	// Flood outputs the frame on all ports except the ingress one. Chosen
	// when the destination MAC has never been seen as a source.
	Flood Verdict = iota
	// Drop suppresses the frame: the destination's learned port equals
	// the ingress port, which indicates a loop.
	Drop
	// Forward outputs the frame on the learned port.
	Forward
)

func (v Verdict) String() string {
	switch v {
	case Flood:
		return "flood"
	case Drop:
		return "drop"
	case Forward:
		return "forward"
	default:
		return "unknown"
	}
}

// Decision is the L2 forwarding decision for one frame.
type Decision struct {
	Verdict Verdict
	// Port is the learned output port; only meaningful for Forward.
	Port uint16
}

// Table is the MAC to port learning table of a single switch. Entries are
// last-write-wins and never age out; the table lives only as long as the
// switch connection.
//
// A Table is owned exclusively by one switch controller and must only be
// accessed from its event loop.
type Table struct {
	macToPort map[string]uint16
}

// NewTable creates an empty learning table.
func NewTable() *Table {
	return &Table{macToPort: make(map[string]uint16)}
}

// Learn records the port the given source MAC was last seen on. It is
// called for every frame, before the forwarding decision for that same
// frame and independent of the policy outcome.
func (t *Table) Learn(src net.HardwareAddr, port uint16) {
	t.macToPort[string(src)] = port
}

// Lookup returns the learned port for a MAC.
func (t *Table) Lookup(mac net.HardwareAddr) (uint16, bool) {
	port, ok := t.macToPort[string(mac)]
	return port, ok
}

// Decide returns the forwarding decision for a frame towards dst that
// arrived on inPort.
func (t *Table) Decide(dst net.HardwareAddr, inPort uint16) Decision {
	port, ok := t.macToPort[string(dst)]
	switch {
	case !ok:
		return Decision{Verdict: Flood}
	case port == inPort:
		return Decision{Verdict: Drop, Port: port}
	default:
		return Decision{Verdict: Forward, Port: port}
	}
}

// Len returns the number of learned MACs.
func (t *Table) Len() int {
	return len(t.macToPort)
}
