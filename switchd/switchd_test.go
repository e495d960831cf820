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
	"context"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/condorflow/condorflow/pkg/classad"
	"github.com/condorflow/condorflow/pkg/condorcfg"
	"github.com/condorflow/condorflow/pkg/ofp"
	"github.com/condorflow/condorflow/pkg/oracle"
	"github.com/condorflow/condorflow/pkg/policy"
	"github.com/condorflow/condorflow/pkg/private/xtest"
)

// fakeConn records every message sent towards one switch.
type fakeConn struct {
	dpid ofp.DPID

	mtx  sync.Mutex
	sent []ofp.Message
}

func (c *fakeConn) DPID() ofp.DPID { return c.dpid }

func (c *fakeConn) Send(msg ofp.Message) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) messages() []ofp.Message {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return append([]ofp.Message(nil), c.sent...)
}

// staticResolver maps IPs to owners without a live oracle.
type staticResolver map[string]string

func (r staticResolver) Resolve(ctx context.Context, ip netip.Addr) (oracle.Response, error) {
	owner, ok := r[ip.String()]
	if !ok {
		return oracle.Response{}, nil
	}
	return oracle.Response{
		Found: true,
		Ad:    classad.Classad{oracle.AttrOwner: owner},
	}, nil
}

const testDPID ofp.DPID = 0x001e68041c20

func testController(t *testing.T, params condorcfg.Source, resolver oracle.Resolver) (
	*switchController, *fakeConn) {

	t.Helper()
	conn := &fakeConn{dpid: testDPID}
	engine := &policy.Engine{Params: params, Resolver: resolver}
	return newSwitchController(conn, engine, params, nil, 16), conn
}

func tcpFrame(t *testing.T, srcMAC, dstMAC, srcIP, dstIP string, dstPort uint16) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       xtest.MustParseMAC(t, srcMAC),
		DstMAC:       xtest.MustParseMAC(t, dstMAC),
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.ParseIP(srcIP),
		DstIP:    net.ParseIP(dstIP),
	}
	tcp := &layers.TCP{SrcPort: 49152, DstPort: layers.TCPPort(dstPort)}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp))
	return buf.Bytes()
}

func arpFrame(t *testing.T, srcMAC string) []byte {
	t.Helper()
	src := xtest.MustParseMAC(t, srcMAC)
	eth := &layers.Ethernet{
		SrcMAC:       src,
		DstMAC:       xtest.MustParseMAC(t, "ff:ff:ff:ff:ff:ff"),
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   src,
		SourceProtAddress: net.ParseIP("10.0.0.7").To4(),
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    net.ParseIP("10.0.0.9").To4(),
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, arp))
	return buf.Bytes()
}

func lldpFrame(t *testing.T, srcMAC string) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       xtest.MustParseMAC(t, srcMAC),
		DstMAC:       xtest.MustParseMAC(t, "01:80:c2:00:00:0e"),
		EthernetType: layers.EthernetTypeLinkLayerDiscovery,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth,
		gopacket.Payload([]byte{0x00, 0x00})))
	return buf.Bytes()
}

func TestProcessLLDP(t *testing.T) {
	ctrl, conn := testController(t, condorcfg.NewMap(nil), staticResolver{})
	err := ctrl.process(context.Background(), ofp.PacketIn{
		DPID:     testDPID,
		InPort:   1,
		BufferID: 7,
		Frame:    lldpFrame(t, "02:00:00:00:00:0a"),
	})
	require.NoError(t, err)

	msgs := conn.messages()
	require.Len(t, msgs, 1)
	out, ok := msgs[0].(ofp.PacketOut)
	require.True(t, ok)
	assert.Equal(t, uint32(7), out.BufferID)
	assert.Equal(t, uint16(1), out.InPort)
	assert.Empty(t, out.Actions, "LLDP ack must not flood")

	// The source MAC is still learned.
	port, ok := ctrl.table.Lookup(xtest.MustParseMAC(t, "02:00:00:00:00:0a"))
	assert.True(t, ok)
	assert.Equal(t, uint16(1), port)
}

func TestProcessFloodUnknownDestination(t *testing.T) {
	ctrl, conn := testController(t, condorcfg.NewMap(nil), staticResolver{})
	err := ctrl.process(context.Background(), ofp.PacketIn{
		DPID:     testDPID,
		InPort:   1,
		BufferID: 7,
		Frame:    arpFrame(t, "02:00:00:00:00:0a"),
	})
	require.NoError(t, err)

	msgs := conn.messages()
	require.Len(t, msgs, 1)
	out, ok := msgs[0].(ofp.PacketOut)
	require.True(t, ok)
	assert.Equal(t, []ofp.Action{ofp.Flood()}, out.Actions)
}

func TestProcessForwardLearnedDestination(t *testing.T) {
	ctrl, conn := testController(t, condorcfg.NewMap(nil), staticResolver{})
	ctx := context.Background()

	// Teach the table where B lives, then send A->B.
	require.NoError(t, ctrl.process(ctx, ofp.PacketIn{
		DPID: testDPID, InPort: 2, BufferID: 1,
		Frame: arpFrame(t, "02:00:00:00:00:0b"),
	}))
	require.NoError(t, ctrl.process(ctx, ofp.PacketIn{
		DPID: testDPID, InPort: 1, BufferID: 2,
		Frame: tcpFrame(t, "02:00:00:00:00:0a", "02:00:00:00:00:0b",
			"10.0.0.7", "10.0.0.9", 80),
	}))

	msgs := conn.messages()
	require.Len(t, msgs, 2)
	mod, ok := msgs[1].(ofp.FlowMod)
	require.True(t, ok)
	assert.Equal(t, PriorityForward, mod.Priority)
	assert.Equal(t, IdleTimeout, mod.IdleTimeout)
	assert.Equal(t, HardTimeout, mod.HardTimeout)
	assert.Equal(t, uint32(2), mod.BufferID)
	assert.Equal(t, []ofp.Action{ofp.Output(2)}, mod.Actions)
	assert.Equal(t, xtest.MustParseMAC(t, "02:00:00:00:00:0a"), mod.Match.EthSrc)
	assert.Equal(t, xtest.MustParseMAC(t, "02:00:00:00:00:0b"), mod.Match.EthDst)
}

func TestProcessLoopSuppression(t *testing.T) {
	ctrl, conn := testController(t, condorcfg.NewMap(nil), staticResolver{})
	ctx := context.Background()

	// B is learned on port 3; a frame towards B arriving on port 3 loops.
	require.NoError(t, ctrl.process(ctx, ofp.PacketIn{
		DPID: testDPID, InPort: 3, BufferID: 1,
		Frame: arpFrame(t, "02:00:00:00:00:0b"),
	}))
	require.NoError(t, ctrl.process(ctx, ofp.PacketIn{
		DPID: testDPID, InPort: 3, BufferID: 2,
		Frame: tcpFrame(t, "02:00:00:00:00:0a", "02:00:00:00:00:0b",
			"10.0.0.7", "10.0.0.9", 80),
	}))

	msgs := conn.messages()
	require.Len(t, msgs, 2)
	mod, ok := msgs[1].(ofp.FlowMod)
	require.True(t, ok)
	assert.Equal(t, ofp.DefaultPriority, mod.Priority)
	assert.Empty(t, mod.Actions)
	assert.Equal(t, uint16(3), mod.Match.InPort)
	assert.Equal(t, ofp.EthTypeIPv4, mod.Match.EthType)
	assert.Equal(t, uint16(80), mod.Match.TpDst)
}

func TestProcessPolicyDrop(t *testing.T) {
	params := condorcfg.NewMap(map[string]string{
		condorcfg.KeyBlockedUsers: "eve",
	})
	ctrl, conn := testController(t, params, staticResolver{"10.0.0.7": "eve"})

	err := ctrl.process(context.Background(), ofp.PacketIn{
		DPID: testDPID, InPort: 1, BufferID: 9,
		Frame: tcpFrame(t, "02:00:00:00:00:0a", "02:00:00:00:00:0b",
			"10.0.0.7", "10.0.0.9", 80),
	})
	require.NoError(t, err)

	msgs := conn.messages()
	require.Len(t, msgs, 1)
	mod, ok := msgs[0].(ofp.FlowMod)
	require.True(t, ok)
	assert.Equal(t, PriorityPolicyDrop, mod.Priority)
	assert.Empty(t, mod.Actions)
	assert.Equal(t, uint32(9), mod.BufferID)
	assert.Equal(t, xtest.MustParseMAC(t, "02:00:00:00:00:0a"), mod.Match.EthSrc)
	assert.Equal(t, xtest.MustParseAddr(t, "10.0.0.7"), mod.Match.NwSrc)
	assert.False(t, mod.Match.NwDst.IsValid(), "source scope must not match dst")

	// The source MAC is learned even though the flow is dropped.
	_, learned := ctrl.table.Lookup(xtest.MustParseMAC(t, "02:00:00:00:00:0a"))
	assert.True(t, learned)
}

func TestProcessCoreDrop(t *testing.T) {
	params := condorcfg.NewMap(map[string]string{
		condorcfg.KeyCoreSwitchID:  testDPID.String(),
		condorcfg.KeyCoreDropRules: "zzhang:80",
	})
	ctrl, conn := testController(t, params, staticResolver{"10.0.0.7": "zzhang"})

	err := ctrl.process(context.Background(), ofp.PacketIn{
		DPID: testDPID, InPort: 1, BufferID: 9,
		Frame: tcpFrame(t, "02:00:00:00:00:0a", "02:00:00:00:00:0b",
			"10.0.0.7", "192.0.2.50", 80),
	})
	require.NoError(t, err)

	msgs := conn.messages()
	require.Len(t, msgs, 1)
	mod, ok := msgs[0].(ofp.FlowMod)
	require.True(t, ok)
	assert.Equal(t, PriorityPolicyDrop, mod.Priority)
	assert.Empty(t, mod.Actions)
	assert.Equal(t, ofp.EthTypeIPv4, mod.Match.EthType)
	assert.Equal(t, xtest.MustParseAddr(t, "10.0.0.7"), mod.Match.NwSrc)
	assert.Equal(t, uint16(80), mod.Match.TpDst)
	assert.Nil(t, mod.Match.EthSrc)
}

// TestProcessCoreRoleMismatch checks that an edge switch ignores the core
// drop table even when one is configured.
func TestProcessCoreRoleMismatch(t *testing.T) {
	params := condorcfg.NewMap(map[string]string{
		condorcfg.KeyCoreSwitchID:  "00-00-00-00-00-99",
		condorcfg.KeyCoreDropRules: "zzhang:80",
	})
	ctrl, conn := testController(t, params, staticResolver{"10.0.0.7": "zzhang"})

	err := ctrl.process(context.Background(), ofp.PacketIn{
		DPID: testDPID, InPort: 1, BufferID: 9,
		Frame: tcpFrame(t, "02:00:00:00:00:0a", "02:00:00:00:00:0b",
			"10.0.0.7", "192.0.2.50", 80),
	})
	require.NoError(t, err)

	msgs := conn.messages()
	require.Len(t, msgs, 1)
	out, ok := msgs[0].(ofp.PacketOut)
	require.True(t, ok, "edge role floods instead of applying core rules")
	assert.Equal(t, []ofp.Action{ofp.Flood()}, out.Actions)
}

func TestProcessMalformedFrame(t *testing.T) {
	ctrl, conn := testController(t, condorcfg.NewMap(nil), staticResolver{})
	err := ctrl.process(context.Background(), ofp.PacketIn{
		DPID: testDPID, InPort: 1, BufferID: 9, Frame: nil,
	})
	assert.Error(t, err)

	// The buffered frame is released without actions.
	msgs := conn.messages()
	require.Len(t, msgs, 1)
	out, ok := msgs[0].(ofp.PacketOut)
	require.True(t, ok)
	assert.Empty(t, out.Actions)
}

func TestSwitchdLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	params := condorcfg.NewMap(map[string]string{
		condorcfg.KeyOracleHost:   "127.0.0.1",
		condorcfg.KeyOraclePort:   "9000",
		condorcfg.KeyCoreSwitchID: "00-00-00-00-00-99",
	})
	s := &Switchd{
		Params:   params,
		Resolver: staticResolver{},
	}
	require.NoError(t, s.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := &fakeConn{dpid: testDPID}
	s.ConnectionUp(ctx, conn)
	s.PacketIn(ctx, ofp.PacketIn{
		DPID:     testDPID,
		InPort:   1,
		BufferID: 7,
		Frame:    arpFrame(t, "02:00:00:00:00:0a"),
	})
	assert.Eventually(t, func() bool {
		return len(conn.messages()) == 1
	}, time.Second, 10*time.Millisecond)

	// Events for unknown switches are ignored.
	s.PacketIn(ctx, ofp.PacketIn{DPID: 42, InPort: 1})

	s.ConnectionDown(ctx, testDPID)
	s.PacketIn(ctx, ofp.PacketIn{DPID: testDPID, InPort: 1})
	assert.Len(t, conn.messages(), 1)

	s.Close()
}

func TestSwitchdValidate(t *testing.T) {
	testCases := map[string]struct {
		params    map[string]string
		assertErr assert.ErrorAssertionFunc
	}{
		"complete": {
			params: map[string]string{
				condorcfg.KeyOracleHost:   "127.0.0.1",
				condorcfg.KeyOraclePort:   "9000",
				condorcfg.KeyCoreSwitchID: testDPID.String(),
			},
			assertErr: assert.NoError,
		},
		"missing oracle host": {
			params: map[string]string{
				condorcfg.KeyOraclePort:   "9000",
				condorcfg.KeyCoreSwitchID: testDPID.String(),
			},
			assertErr: assert.Error,
		},
		"missing oracle port": {
			params: map[string]string{
				condorcfg.KeyOracleHost:   "127.0.0.1",
				condorcfg.KeyCoreSwitchID: testDPID.String(),
			},
			assertErr: assert.Error,
		},
		"missing core switch id": {
			params: map[string]string{
				condorcfg.KeyOracleHost: "127.0.0.1",
				condorcfg.KeyOraclePort: "9000",
			},
			assertErr: assert.Error,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			s := &Switchd{Params: condorcfg.NewMap(tc.params)}
			tc.assertErr(t, s.Validate())
		})
	}
}

// TestSwitchdReconnect checks that a reconnecting datapath starts from an
// empty learning table.
func TestSwitchdReconnect(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := &Switchd{
		Params:   condorcfg.NewMap(nil),
		Resolver: staticResolver{},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := &fakeConn{dpid: testDPID}
	s.ConnectionUp(ctx, first)
	s.mtx.Lock()
	firstCtrl := s.switches[testDPID].ctrl
	s.mtx.Unlock()
	firstCtrl.table.Learn(xtest.MustParseMAC(t, "02:00:00:00:00:0a"), 1)

	second := &fakeConn{dpid: testDPID}
	s.ConnectionUp(ctx, second)
	s.mtx.Lock()
	secondCtrl := s.switches[testDPID].ctrl
	s.mtx.Unlock()
	require.NotSame(t, firstCtrl, secondCtrl)
	assert.Equal(t, 0, secondCtrl.table.Len())

	s.Close()
}
