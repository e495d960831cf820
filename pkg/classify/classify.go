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

// Package classify extracts the L2/L3 addressing and protocol fields the
// decision logic needs from raw Ethernet frames.
package classify

import (
	"net"
	"net/netip"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"github.com/condorflow/condorflow/pkg/ofp"
	"github.com/condorflow/condorflow/pkg/private/serrors"
)

// FrameInfo is the classification result for one Ethernet frame. The
// absence of an IPv4 layer is a valid result; it signals that the frame is
// not subject to job authorization and defers to plain L2 learning.
type FrameInfo struct {
	EthType uint16
	SrcMAC  net.HardwareAddr
	DstMAC  net.HardwareAddr
	// SrcIP and DstIP are only set if the frame carries an IPv4 header.
	SrcIP netip.Addr
	DstIP netip.Addr
	// TCPDstPort is the TCP destination port, 0 if the payload is not TCP.
	TCPDstPort uint16
}

// HasIPv4 returns whether the frame carries an IPv4 header.
func (f FrameInfo) HasIPv4() bool {
	return f.SrcIP.IsValid()
}

// IsLLDP returns whether the frame is a link layer discovery frame. Such
// frames get an actionless acknowledgment instead of flooding.
func (f FrameInfo) IsLLDP() bool {
	return f.EthType == ofp.EthTypeLLDP
}

// ExactMatch builds a flow table match covering every classified field of
// the frame, for suppression rules that must apply to this exact flow
// only.
func (f FrameInfo) ExactMatch(inPort uint16) ofp.Match {
	m := ofp.Match{
		InPort:  inPort,
		EthType: f.EthType,
		EthSrc:  f.SrcMAC,
		EthDst:  f.DstMAC,
	}
	if f.HasIPv4() {
		m.NwSrc = f.SrcIP
		m.NwDst = f.DstIP
		m.TpDst = f.TCPDstPort
	}
	return m
}

// Classify parses an Ethernet frame. VLAN tagged IPv4 is classified like
// untagged IPv4.
func Classify(frame []byte) (FrameInfo, error) {
	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.NoCopy)
	eth, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	if !ok {
		return FrameInfo{}, serrors.New("frame without ethernet header",
			"len", len(frame))
	}
	info := FrameInfo{
		EthType: uint16(eth.EthernetType),
		SrcMAC:  eth.SrcMAC,
		DstMAC:  eth.DstMAC,
	}
	ip, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if !ok {
		return info, nil
	}
	src, okSrc := netip.AddrFromSlice(ip.SrcIP.To4())
	dst, okDst := netip.AddrFromSlice(ip.DstIP.To4())
	if !okSrc || !okDst {
		return FrameInfo{}, serrors.New("IPv4 header with bad addresses",
			"src", ip.SrcIP, "dst", ip.DstIP)
	}
	info.SrcIP = src
	info.DstIP = dst
	if tcp, ok := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP); ok {
		info.TCPDstPort = uint16(tcp.DstPort)
	}
	return info, nil
}
