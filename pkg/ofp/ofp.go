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

// Package ofp models the slice of the OpenFlow switch-control interface
// the controller consumes: packet-in events delivered by the host runtime
// and the packet-out/flow-mod messages emitted in response. The host
// runtime owns the wire encoding; these types are the contract between it
// and the decision logic.
package ofp

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"strings"
)

const (
	// NoBuffer indicates that the frame is not buffered on the switch.
	NoBuffer uint32 = 0xffffffff
	// PortFlood outputs to all ports except the ingress port.
	PortFlood uint16 = 0xfffb
	// DefaultPriority is the flow entry priority used when no explicit
	// priority is chosen.
	DefaultPriority uint16 = 0x8000

	// EthTypeIPv4 is the ethertype of IPv4 frames.
	EthTypeIPv4 uint16 = 0x0800
	// EthTypeLLDP is the ethertype of link layer discovery frames.
	EthTypeLLDP uint16 = 0x88cc
)

// DPID is the datapath identifier of a switch. The canonical string form
// renders the low 48 bits like a MAC address, e.g. "00-1e-68-04-1c-20".
type DPID uint64

func (d DPID) String() string {
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], uint64(d))
	parts := make([]string, 6)
	for i, b := range raw[2:] {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, "-")
}

// ParseDPID parses a datapath identifier in the canonical dashed form.
func ParseDPID(s string) (DPID, error) {
	hw, err := net.ParseMAC(strings.ReplaceAll(s, "-", ":"))
	if err != nil || len(hw) != 6 {
		return 0, fmt.Errorf("invalid datapath id: %q", s)
	}
	var raw [8]byte
	copy(raw[2:], hw)
	return DPID(binary.BigEndian.Uint64(raw[:])), nil
}

// PacketIn is the notification that a frame without a matching flow table
// entry arrived at a switch.
type PacketIn struct {
	// DPID identifies the switch that delivered the event.
	DPID DPID
	// InPort is the port the frame arrived on.
	InPort uint16
	// BufferID refers to the frame buffered on the switch, or NoBuffer.
	BufferID uint32
	// Frame is the raw Ethernet frame.
	Frame []byte
}

// Match selects the frames a flow entry applies to. Zero valued fields are
// wildcards.
type Match struct {
	InPort  uint16
	EthType uint16
	EthSrc  net.HardwareAddr
	EthDst  net.HardwareAddr
	NwSrc   netip.Addr
	NwDst   netip.Addr
	TpDst   uint16
}

// String renders the match in ovs-ofctl style field syntax, for logging.
func (m Match) String() string {
	var parts []string
	if m.InPort != 0 {
		parts = append(parts, fmt.Sprintf("in_port=%d", m.InPort))
	}
	if m.EthType != 0 {
		parts = append(parts, fmt.Sprintf("dl_type=0x%04x", m.EthType))
	}
	if m.EthSrc != nil {
		parts = append(parts, fmt.Sprintf("dl_src=%s", m.EthSrc))
	}
	if m.EthDst != nil {
		parts = append(parts, fmt.Sprintf("dl_dst=%s", m.EthDst))
	}
	if m.NwSrc.IsValid() {
		parts = append(parts, fmt.Sprintf("nw_src=%s", m.NwSrc))
	}
	if m.NwDst.IsValid() {
		parts = append(parts, fmt.Sprintf("nw_dst=%s", m.NwDst))
	}
	if m.TpDst != 0 {
		parts = append(parts, fmt.Sprintf("tp_dst=%d", m.TpDst))
	}
	if len(parts) == 0 {
		return "any"
	}
	return strings.Join(parts, ",")
}

// Action outputs a frame on a port. PortFlood floods.
type Action struct {
	Port uint16
}

// Output returns an action that outputs to the given port.
func Output(port uint16) Action {
	return Action{Port: port}
}

// Flood returns an action that outputs to all ports but the ingress one.
func Flood() Action {
	return Action{Port: PortFlood}
}

// Message is a controller-to-switch message.
type Message interface {
	isMessage()
}

// FlowMod installs a flow table entry. An empty action list drops matching
// frames for the lifetime of the entry.
type FlowMod struct {
	Match       Match
	Priority    uint16
	IdleTimeout uint16
	HardTimeout uint16
	BufferID    uint32
	Actions     []Action
}

func (FlowMod) isMessage() {}

// PacketOut handles a single buffered frame without touching the flow
// table. An empty action list discards the frame.
type PacketOut struct {
	BufferID uint32
	InPort   uint16
	Actions  []Action
}

func (PacketOut) isMessage() {}

// Connection sends controller-to-switch messages for one datapath. It is
// implemented by the host switch-control runtime.
type Connection interface {
	DPID() DPID
	Send(msg Message) error
}
