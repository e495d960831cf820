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

package switchd

import (
	"github.com/condorflow/condorflow/pkg/classify"
	"github.com/condorflow/condorflow/pkg/ofp"
	"github.com/condorflow/condorflow/pkg/policy"
	"github.com/condorflow/condorflow/pkg/private/serrors"
)

// Flow table timeouts of every installed rule, in the time unit of the
// switch-control interface.
const (
	IdleTimeout uint16 = 5
	HardTimeout uint16 = 10
)

// Flow entry priorities. Policy drops must outrank directed forwarding,
// which must outrank the implicit table-miss flood, so that the dataplane
// enforces a decision without revisiting the controller until the rule
// expires.
const (
	PriorityPolicyDrop uint16 = 12
	PriorityForward    uint16 = 10
)

// emitter converts decisions into the single switch command each of them
// maps to.
type emitter struct {
	conn ofp.Connection
}

// ackLLDP acknowledges a link layer discovery frame with an actionless
// packet-out, so the switch releases the buffer without flooding.
func (e emitter) ackLLDP(ev ofp.PacketIn) error {
	return e.send(ofp.PacketOut{
		BufferID: ev.BufferID,
		InPort:   ev.InPort,
	})
}

// flood outputs the buffered frame on all ports except the ingress one.
func (e emitter) flood(ev ofp.PacketIn) error {
	return e.send(ofp.PacketOut{
		BufferID: ev.BufferID,
		InPort:   ev.InPort,
		Actions:  []ofp.Action{ofp.Flood()},
	})
}

// dropPolicy installs the suppression rule for a policy drop. The match
// width follows the decision scope.
func (e emitter) dropPolicy(ev ofp.PacketIn, frame classify.FrameInfo,
	decision policy.Decision) error {

	var match ofp.Match
	switch decision.Scope {
	case policy.ScopeSrc:
		match = ofp.Match{EthSrc: frame.SrcMAC, NwSrc: frame.SrcIP}
	case policy.ScopeSrcDst:
		match = ofp.Match{EthSrc: frame.SrcMAC, NwSrc: frame.SrcIP, NwDst: frame.DstIP}
	case policy.ScopeCore:
		match = ofp.Match{
			EthType: ofp.EthTypeIPv4,
			NwSrc:   frame.SrcIP,
			TpDst:   frame.TCPDstPort,
		}
	default:
		return serrors.New("unknown suppression scope", "scope", decision.Scope)
	}
	return e.send(ofp.FlowMod{
		Match:       match,
		Priority:    PriorityPolicyDrop,
		IdleTimeout: IdleTimeout,
		HardTimeout: HardTimeout,
		BufferID:    ev.BufferID,
	})
}

// dropLoop installs an exact-match suppression rule for a frame whose
// destination was learned on its own arrival port.
func (e emitter) dropLoop(ev ofp.PacketIn, frame classify.FrameInfo) error {
	return e.send(ofp.FlowMod{
		Match:       frame.ExactMatch(ev.InPort),
		Priority:    ofp.DefaultPriority,
		IdleTimeout: IdleTimeout,
		HardTimeout: HardTimeout,
		BufferID:    ev.BufferID,
	})
}

// forward installs a directed (src MAC, dst MAC) forwarding rule and
// outputs the buffered frame on the learned port.
func (e emitter) forward(ev ofp.PacketIn, frame classify.FrameInfo, port uint16) error {
	return e.send(ofp.FlowMod{
		Match:       ofp.Match{EthSrc: frame.SrcMAC, EthDst: frame.DstMAC},
		Priority:    PriorityForward,
		IdleTimeout: IdleTimeout,
		HardTimeout: HardTimeout,
		BufferID:    ev.BufferID,
		Actions:     []ofp.Action{ofp.Output(port)},
	})
}

func (e emitter) send(msg ofp.Message) error {
	if err := e.conn.Send(msg); err != nil {
		return serrors.Wrap("sending switch command", err, "dpid", e.conn.DPID())
	}
	return nil
}
