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

// Package policy evaluates the layered job authorization policy. The edge
// tier is an ordered, first-match rule list over the resolved owner of a
// flow's source and destination; the core tier is a configurable
// (owner, tcp destination port) drop table. Any flow no rule claims defers
// to plain L2 learning.
//
// The policy is intentionally asymmetric: an owner in
// BLOCKED_USERS_OUTSIDE reaching an untracked destination is dropped
// unless the destination is whitelisted, while an unrestricted owner
// reaching an untracked destination is allowed. Do not "fix" this without
// a policy change upstream.
package policy

import (
	"context"
	"net/netip"

	"github.com/condorflow/condorflow/pkg/condorcfg"
	"github.com/condorflow/condorflow/pkg/log"
	"github.com/condorflow/condorflow/pkg/oracle"
	"github.com/condorflow/condorflow/pkg/private/serrors"
)

// Verdict is the policy outcome for one flow.
type Verdict int

const (
	// Defer leaves the forwarding decision to L2 learning.
	Defer Verdict = iota
	// Drop terminates the flow and installs a suppression rule.
	Drop
)

func (v Verdict) String() string {
	switch v {
	case Defer:
		return "defer"
	case Drop:
		return "drop"
	default:
		return "unknown"
	}
}

// Scope selects the match fields of the suppression rule a Drop installs.
type Scope int

const (
	// ScopeSrc matches the source MAC and source IP.
	ScopeSrc Scope = iota
	// ScopeSrcDst additionally matches the destination IP.
	ScopeSrcDst
	// ScopeCore matches the IPv4 ethertype, source IP and TCP destination
	// port.
	ScopeCore
)

func (s Scope) String() string {
	switch s {
	case ScopeSrc:
		return "src"
	case ScopeSrcDst:
		return "src+dst"
	case ScopeCore:
		return "core"
	default:
		return "unknown"
	}
}

// Decision is the result of a policy evaluation.
type Decision struct {
	Verdict Verdict
	// Scope is only meaningful for Drop.
	Scope Scope
	// Owner is the resolved owner of the source IP, if any.
	Owner string
	// PeerOwner is the resolved owner of the destination IP, if any.
	PeerOwner string
	// Reason names the rule that produced a Drop, for logs and metrics.
	Reason string
}

// Flow is the slice of the packet classification the policy inspects.
type Flow struct {
	// SrcIP and DstIP are invalid if the frame carries no IPv4 header.
	SrcIP netip.Addr
	DstIP netip.Addr
	// TCPDstPort is 0 if the payload is not TCP.
	TCPDstPort uint16
}

// FailMode decides the outcome of a flow whose authorization cannot be
// answered because the oracle is unreachable or returned garbage.
type FailMode int

const (
	// FailOpen treats an unanswerable lookup like NotFound. This is the
	// default: a broken oracle degrades the network to a plain learning
	// switch instead of partitioning it.
	FailOpen FailMode = iota
	// FailClosed drops flows whose authorization cannot be answered.
	FailClosed
)

func (m FailMode) String() string {
	if m == FailClosed {
		return "closed"
	}
	return "open"
}

// UnmarshalText implements encoding.TextUnmarshaler for config loading.
func (m *FailMode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "open":
		*m = FailOpen
	case "closed":
		*m = FailClosed
	default:
		return serrors.New("unknown fail mode", "value", string(text))
	}
	return nil
}

// Engine evaluates the authorization policy. All parameters (blocked user
// sets, whitelist, core rules) are read from Params on every decision.
type Engine struct {
	Params   condorcfg.Source
	Resolver oracle.Resolver
	FailMode FailMode
}

// DecideEdge evaluates the edge-tier policy for one flow. The returned
// decision is Drop or Defer; Defer includes flows the policy never looked
// at (no IPv4, untracked source).
func (e *Engine) DecideEdge(ctx context.Context, flow Flow) Decision {
	if !flow.SrcIP.IsValid() {
		return Decision{Verdict: Defer}
	}
	src, err := e.resolve(ctx, flow.SrcIP)
	if err != nil {
		return e.unanswerable(ctx, flow, err)
	}
	if !src.Found {
		return Decision{Verdict: Defer}
	}
	owner := src.Owner()

	// Ordered first-match rule list; the first tier that claims the owner
	// decides the flow.
	rules := []edgeRule{
		e.blockedOwner,
		e.blockedOutsideOwner,
		e.unrestrictedOwner,
	}
	for _, rule := range rules {
		decision, claimed, err := rule(ctx, flow, owner)
		if err != nil {
			return e.unanswerable(ctx, flow, err)
		}
		if claimed {
			decision.Owner = owner
			return decision
		}
	}
	return Decision{Verdict: Defer, Owner: owner}
}

// edgeRule evaluates one tier for a flow with a resolved source owner.
// claimed reports whether the tier applies to the owner; once a tier
// claims a flow no later tier is consulted, even if the claimed decision
// is Defer.
type edgeRule func(ctx context.Context, flow Flow, owner string) (
	decision Decision, claimed bool, err error)

// blockedOwner drops everything from owners in BLOCKED_USERS, regardless
// of destination.
func (e *Engine) blockedOwner(ctx context.Context, flow Flow, owner string) (
	Decision, bool, error) {

	blocked, err := condorcfg.Set(e.Params, condorcfg.KeyBlockedUsers)
	if err != nil {
		return Decision{}, false, err
	}
	if _, ok := blocked[owner]; !ok {
		return Decision{}, false, nil
	}
	return Decision{Verdict: Drop, Scope: ScopeSrc, Reason: "blocked owner"}, true, nil
}

// blockedOutsideOwner confines owners in BLOCKED_USERS_OUTSIDE to their
// own jobs and the whitelisted destinations.
func (e *Engine) blockedOutsideOwner(ctx context.Context, flow Flow, owner string) (
	Decision, bool, error) {

	confined, err := condorcfg.Set(e.Params, condorcfg.KeyBlockedUsersOutside)
	if err != nil {
		return Decision{}, false, err
	}
	if _, ok := confined[owner]; !ok {
		return Decision{}, false, nil
	}
	if !flow.DstIP.IsValid() {
		return Decision{Verdict: Defer}, true, nil
	}
	dst, err := e.resolve(ctx, flow.DstIP)
	if err != nil {
		return Decision{}, false, err
	}
	if dst.Found {
		if peer := dst.Owner(); peer != owner {
			return Decision{
				Verdict:   Drop,
				Scope:     ScopeSrcDst,
				PeerOwner: peer,
				Reason:    "cross-owner traffic",
			}, true, nil
		}
		// Traffic between jobs of the same owner is always allowed.
		return Decision{Verdict: Defer}, true, nil
	}
	// Untracked destination: outside the pool. Allowed only if
	// whitelisted.
	whitelisted, err := e.whitelisted(ctx, flow.DstIP)
	if err != nil {
		return Decision{}, false, err
	}
	if whitelisted {
		return Decision{Verdict: Defer}, true, nil
	}
	return Decision{
		Verdict: Drop,
		Scope:   ScopeSrcDst,
		Reason:  "external destination not whitelisted",
	}, true, nil
}

// unrestrictedOwner lets any remaining owner reach the outside freely, but
// never another owner's tracked job. This tier claims every flow that
// reaches it.
func (e *Engine) unrestrictedOwner(ctx context.Context, flow Flow, owner string) (
	Decision, bool, error) {

	if !flow.DstIP.IsValid() {
		return Decision{Verdict: Defer}, true, nil
	}
	dst, err := e.resolve(ctx, flow.DstIP)
	if err != nil {
		return Decision{}, false, err
	}
	if peer := dst.Owner(); dst.Found && peer != owner {
		return Decision{
			Verdict:   Drop,
			Scope:     ScopeSrcDst,
			PeerOwner: peer,
			Reason:    "cross-owner traffic",
		}, true, nil
	}
	// Same owner or untracked destination.
	return Decision{Verdict: Defer}, true, nil
}

// DecideCore evaluates the core-tier policy: a table of
// (owner, tcp destination port) pairs that are dropped at the core switch.
func (e *Engine) DecideCore(ctx context.Context, flow Flow) Decision {
	if !flow.SrcIP.IsValid() {
		return Decision{Verdict: Defer}
	}
	src, err := e.resolve(ctx, flow.SrcIP)
	if err != nil {
		return e.unanswerable(ctx, flow, err)
	}
	if !src.Found {
		return Decision{Verdict: Defer}
	}
	owner := src.Owner()
	rules, err := e.coreRules(ctx)
	if err != nil {
		return e.unanswerable(ctx, flow, err)
	}
	for _, rule := range rules {
		if rule.Owner == owner && rule.TpDst == flow.TCPDstPort {
			return Decision{
				Verdict: Drop,
				Scope:   ScopeCore,
				Owner:   owner,
				Reason:  "core drop rule",
			}
		}
	}
	return Decision{Verdict: Defer, Owner: owner}
}

// resolve applies the fail mode to oracle failures. Under FailOpen an
// unanswerable lookup is coerced to NotFound, so the tier that asked
// still applies its own NotFound semantics (in particular the whitelist
// check of the confined tier). Under FailClosed the error is surfaced and
// ends in a Drop.
func (e *Engine) resolve(ctx context.Context, ip netip.Addr) (oracle.Response, error) {
	resp, err := e.Resolver.Resolve(ctx, ip)
	if err == nil {
		return resp, nil
	}
	if e.FailMode == FailClosed {
		return oracle.Response{}, err
	}
	log.FromCtx(ctx).Error("Oracle lookup failed, failing open to NotFound",
		"ip", ip, "err", err)
	return oracle.Response{}, nil
}

// unanswerable applies the configured fail mode to a flow whose
// authorization inputs could not be obtained.
func (e *Engine) unanswerable(ctx context.Context, flow Flow, err error) Decision {
	logger := log.FromCtx(ctx)
	if e.FailMode == FailClosed {
		logger.Error("Authorization unanswerable, failing closed",
			"src", flow.SrcIP, "dst", flow.DstIP, "err", err)
		return Decision{Verdict: Drop, Scope: ScopeSrc, Reason: "authorization unanswerable"}
	}
	logger.Error("Authorization unanswerable, failing open to L2 learning",
		"src", flow.SrcIP, "dst", flow.DstIP, "err", err)
	return Decision{Verdict: Defer}
}
