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

// Package switchd ties the controller together: it tracks switch
// connections, runs one decision loop per connected switch, and wires the
// policy engine and the oracle client into the packet-in pipeline.
package switchd

import (
	"context"
	"net/netip"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/condorflow/condorflow/pkg/condorcfg"
	"github.com/condorflow/condorflow/pkg/log"
	"github.com/condorflow/condorflow/pkg/ofp"
	"github.com/condorflow/condorflow/pkg/oracle"
	"github.com/condorflow/condorflow/pkg/policy"
	"github.com/condorflow/condorflow/pkg/private/serrors"
)

// defaultQueueSize bounds the per-switch packet-in queue.
const defaultQueueSize = 256

// Switchd is the controller aggregate. One instance serves any number of
// switch connections; each connection gets its own learning table and
// decision goroutine.
type Switchd struct {
	// Params is the HTCondor param source consulted on every decision.
	Params condorcfg.Source
	// Resolver resolves flow endpoints to job ownership metadata.
	Resolver oracle.Resolver
	// FailMode decides flows whose authorization cannot be answered.
	FailMode policy.FailMode
	// Metrics is optional; nil disables instrumentation.
	Metrics *Metrics
	// QueueSize overrides the per-switch event queue bound if positive.
	QueueSize int

	mtx      sync.Mutex
	engine   *policy.Engine
	switches map[ofp.DPID]*runningSwitch
}

type runningSwitch struct {
	ctrl   *switchController
	cancel context.CancelFunc
}

// Validate checks the parameter surface needed to run at all. The oracle
// address and the core switch identity are required up front; everything
// else may appear in the param file later, since it is re-read per
// decision.
func (s *Switchd) Validate() error {
	required := []string{
		condorcfg.KeyOracleHost,
		condorcfg.KeyOraclePort,
		condorcfg.KeyCoreSwitchID,
	}
	for _, key := range required {
		if _, err := s.Params.Lookup(key); err != nil {
			return serrors.Wrap("required parameter missing", err, "key", key)
		}
	}
	return nil
}

// Run blocks until ctx is cancelled, then stops all decision loops. The
// switch-control runtime embedding this controller drives it through
// ConnectionUp, ConnectionDown and PacketIn while Run is active.
func (s *Switchd) Run(ctx context.Context) error {
	<-ctx.Done()
	s.Close()
	return nil
}

// ConnectionUp registers a new switch connection and starts its decision
// loop. A second connection with the same datapath ID replaces the first;
// the old loop is stopped and its learning table discarded.
func (s *Switchd) ConnectionUp(ctx context.Context, conn ofp.Connection) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.switches == nil {
		s.switches = make(map[ofp.DPID]*runningSwitch)
	}
	if s.engine == nil {
		s.engine = &policy.Engine{
			Params:   s.Params,
			Resolver: s.measuredResolver(),
			FailMode: s.FailMode,
		}
	}
	dpid := conn.DPID()
	if old, ok := s.switches[dpid]; ok {
		log.FromCtx(ctx).Info("Replacing existing switch connection", "dpid", dpid)
		old.cancel()
	}
	queueSize := s.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	ctrl := newSwitchController(conn, s.engine, s.Params, s.Metrics, queueSize)
	runCtx, cancel := context.WithCancel(ctx)
	s.switches[dpid] = &runningSwitch{ctrl: ctrl, cancel: cancel}
	if s.Metrics != nil {
		s.Metrics.SwitchesConnected.Set(float64(len(s.switches)))
	}
	go func() {
		defer log.HandlePanic()
		ctrl.run(runCtx)
	}()
}

// ConnectionDown stops the decision loop of a switch and forgets its
// learned state.
func (s *Switchd) ConnectionDown(ctx context.Context, dpid ofp.DPID) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	running, ok := s.switches[dpid]
	if !ok {
		log.FromCtx(ctx).Debug("Connection down for unknown switch", "dpid", dpid)
		return
	}
	running.cancel()
	delete(s.switches, dpid)
	if s.Metrics != nil {
		s.Metrics.SwitchesConnected.Set(float64(len(s.switches)))
	}
}

// PacketIn dispatches a packet-in event to the owning switch's decision
// loop. Events for unknown switches are dropped; the switch will resend
// once its connection-up is processed.
func (s *Switchd) PacketIn(ctx context.Context, ev ofp.PacketIn) {
	s.mtx.Lock()
	running, ok := s.switches[ev.DPID]
	s.mtx.Unlock()
	if !ok {
		log.FromCtx(ctx).Debug("Packet-in for unknown switch", "dpid", ev.DPID)
		return
	}
	running.ctrl.enqueue(ev)
}

// Close stops all decision loops.
func (s *Switchd) Close() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for dpid, running := range s.switches {
		running.cancel()
		delete(s.switches, dpid)
	}
	if s.Metrics != nil {
		s.Metrics.SwitchesConnected.Set(0)
	}
}

func (s *Switchd) measuredResolver() oracle.Resolver {
	if s.Metrics == nil {
		return s.Resolver
	}
	return measuredResolver{resolver: s.Resolver, requests: s.Metrics.OracleRequests}
}

// measuredResolver counts oracle lookups by result.
type measuredResolver struct {
	resolver oracle.Resolver
	requests *prometheus.CounterVec
}

func (m measuredResolver) Resolve(ctx context.Context, ip netip.Addr) (oracle.Response, error) {
	resp, err := m.resolver.Resolve(ctx, ip)
	switch {
	case err != nil:
		m.requests.WithLabelValues("error").Inc()
	case resp.Found:
		m.requests.WithLabelValues("found").Inc()
	default:
		m.requests.WithLabelValues("notfound").Inc()
	}
	return resp, err
}
