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
	"errors"

	"github.com/condorflow/condorflow/pkg/classify"
	"github.com/condorflow/condorflow/pkg/condorcfg"
	"github.com/condorflow/condorflow/pkg/l2"
	"github.com/condorflow/condorflow/pkg/log"
	"github.com/condorflow/condorflow/pkg/ofp"
	"github.com/condorflow/condorflow/pkg/policy"
)

// switchController is the decision logic of a single switch connection.
// It owns the connection's learning table and processes packet-in events
// strictly one at a time from its own goroutine; an oracle round trip
// therefore stalls only this switch, never its siblings.
type switchController struct {
	dpid    ofp.DPID
	engine  *policy.Engine
	params  condorcfg.Source
	table   *l2.Table
	emit    emitter
	metrics *Metrics
	events  chan ofp.PacketIn
}

func newSwitchController(conn ofp.Connection, engine *policy.Engine,
	params condorcfg.Source, metrics *Metrics, queueSize int) *switchController {

	return &switchController{
		dpid:    conn.DPID(),
		engine:  engine,
		params:  params,
		table:   l2.NewTable(),
		emit:    emitter{conn: conn},
		metrics: metrics,
		events:  make(chan ofp.PacketIn, queueSize),
	}
}

// enqueue hands a packet-in event to the controller's event loop. Events
// are discarded when the queue is full; the frame stays buffered on the
// switch until its buffer ages out, so discarding is safe, only slow.
func (c *switchController) enqueue(ev ofp.PacketIn) {
	select {
	case c.events <- ev:
	default:
		log.Debug("Event queue full, discarding packet-in", "dpid", c.dpid)
		if c.metrics != nil {
			c.metrics.EventsDiscarded.WithLabelValues(c.dpid.String()).Inc()
		}
	}
}

// run processes events until ctx is cancelled. The learning table dies
// with the run loop; a reconnecting switch starts from an empty table.
func (c *switchController) run(ctx context.Context) {
	ctx, logger := log.WithLabels(ctx, "dpid", c.dpid)
	logger.Info("Switch connected")
	defer logger.Info("Switch disconnected", "learned_macs", c.table.Len())
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			if err := c.process(ctx, ev); err != nil {
				logger.Error("Processing packet-in", "err", err)
			}
		}
	}
}

// process runs one event through the pipeline: classify, learn, authorize,
// emit. MAC learning always happens, before the forwarding decision and
// independent of the policy outcome.
func (c *switchController) process(ctx context.Context, ev ofp.PacketIn) error {
	logger := log.FromCtx(ctx)
	if c.metrics != nil {
		c.metrics.PacketsTotal.WithLabelValues(c.dpid.String()).Inc()
	}
	frame, err := classify.Classify(ev.Frame)
	if err != nil {
		// Release the switch buffer, there is nothing sensible to do with
		// the frame.
		if ackErr := c.emit.ackLLDP(ev); ackErr != nil {
			err = errors.Join(err, ackErr)
		}
		return err
	}

	c.table.Learn(frame.SrcMAC, ev.InPort)

	if frame.IsLLDP() {
		logger.Debug("Acknowledging LLDP frame")
		return c.emit.ackLLDP(ev)
	}

	decision := c.decide(ctx, frame)
	if decision.Verdict == policy.Drop {
		logger.Info("Dropping flow by policy",
			"reason", decision.Reason,
			"owner", decision.Owner,
			"peer_owner", decision.PeerOwner,
			"src_mac", frame.SrcMAC,
			"dst_mac", frame.DstMAC,
			"src_ip", frame.SrcIP,
			"dst_ip", frame.DstIP,
			"scope", decision.Scope)
		if c.metrics != nil {
			c.metrics.DropsTotal.WithLabelValues(c.dpid.String(), decision.Reason).Inc()
			c.metrics.FlowModsTotal.WithLabelValues(c.dpid.String(), "policy-drop").Inc()
		}
		return c.emit.dropPolicy(ev, frame, decision)
	}

	return c.forward(ctx, ev, frame)
}

// decide evaluates the policy tier matching this switch's role. The core
// switch identity is polled per decision like every other parameter.
func (c *switchController) decide(ctx context.Context, frame classify.FrameInfo) policy.Decision {
	flow := policy.Flow{
		SrcIP:      frame.SrcIP,
		DstIP:      frame.DstIP,
		TCPDstPort: frame.TCPDstPort,
	}
	if c.isCore(ctx) {
		return c.engine.DecideCore(ctx, flow)
	}
	return c.engine.DecideEdge(ctx, flow)
}

func (c *switchController) isCore(ctx context.Context) bool {
	raw, err := c.params.Lookup(condorcfg.KeyCoreSwitchID)
	if err != nil {
		if !errors.Is(err, condorcfg.ErrNotSet) {
			log.FromCtx(ctx).Error("Reading core switch identity", "err", err)
		}
		return false
	}
	coreID, err := ofp.ParseDPID(raw)
	if err != nil {
		log.FromCtx(ctx).Error("Invalid core switch identity", "value", raw, "err", err)
		return false
	}
	return coreID == c.dpid
}

// forward applies the learning-switch decision for a frame the policy let
// through.
func (c *switchController) forward(ctx context.Context, ev ofp.PacketIn,
	frame classify.FrameInfo) error {

	logger := log.FromCtx(ctx)
	decision := c.table.Decide(frame.DstMAC, ev.InPort)
	switch decision.Verdict {
	case l2.Flood:
		logger.Debug("Port for destination unknown, flooding",
			"dst_mac", frame.DstMAC)
		if c.metrics != nil {
			c.metrics.FloodsTotal.WithLabelValues(c.dpid.String()).Inc()
		}
		return c.emit.flood(ev)
	case l2.Drop:
		logger.Info("Destination learned on arrival port, suppressing loop",
			"src_mac", frame.SrcMAC, "dst_mac", frame.DstMAC, "port", ev.InPort)
		if c.metrics != nil {
			c.metrics.DropsTotal.WithLabelValues(c.dpid.String(), "l2 loop").Inc()
			c.metrics.FlowModsTotal.WithLabelValues(c.dpid.String(), "loop-drop").Inc()
		}
		return c.emit.dropLoop(ev, frame)
	case l2.Forward:
		logger.Debug("Installing directed forwarding rule",
			"src_mac", frame.SrcMAC, "dst_mac", frame.DstMAC, "port", decision.Port)
		if c.metrics != nil {
			c.metrics.FlowModsTotal.WithLabelValues(c.dpid.String(), "forward").Inc()
		}
		return c.emit.forward(ev, frame, decision.Port)
	default:
		return nil
	}
}
