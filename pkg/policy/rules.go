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

package policy

import (
	"context"
	"errors"
	"net/netip"
	"strconv"
	"strings"

	"go4.org/netipx"

	"github.com/condorflow/condorflow/pkg/condorcfg"
	"github.com/condorflow/condorflow/pkg/log"
)

// whitelisted reports whether ip is covered by the WHITE_LIST_IP
// parameter. Entries are plain addresses or CIDR prefixes. Invalid
// entries are logged and skipped, never fatal.
func (e *Engine) whitelisted(ctx context.Context, ip netip.Addr) (bool, error) {
	entries, err := condorcfg.List(e.Params, condorcfg.KeyWhitelistIP)
	if err != nil {
		return false, err
	}
	var sb netipx.IPSetBuilder
	for _, entry := range entries {
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				log.FromCtx(ctx).Error("Skipping invalid whitelist entry",
					"entry", entry, "err", err)
				continue
			}
			sb.AddPrefix(prefix)
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			log.FromCtx(ctx).Error("Skipping invalid whitelist entry",
				"entry", entry, "err", err)
			continue
		}
		sb.Add(addr)
	}
	set, err := sb.IPSet()
	if err != nil {
		return false, err
	}
	return set.Contains(ip), nil
}

// CoreRule drops TCP traffic from one owner to one destination port at
// the core switch.
type CoreRule struct {
	Owner string
	TpDst uint16
}

// ParseCoreRules parses the CORE_DROP_RULES parameter, a comma separated
// list of owner:port entries. Entries that do not parse are returned
// separately so the caller can log them; they never fail the decision.
func ParseCoreRules(raw string) (rules []CoreRule, invalid []string) {
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		owner, portStr, ok := strings.Cut(entry, ":")
		if !ok {
			invalid = append(invalid, entry)
			continue
		}
		port, err := strconv.ParseUint(strings.TrimSpace(portStr), 10, 16)
		if err != nil {
			invalid = append(invalid, entry)
			continue
		}
		owner = strings.TrimSpace(owner)
		if owner == "" {
			invalid = append(invalid, entry)
			continue
		}
		rules = append(rules, CoreRule{Owner: owner, TpDst: uint16(port)})
	}
	return rules, invalid
}

// coreRules reads the core drop table from the param source.
func (e *Engine) coreRules(ctx context.Context) ([]CoreRule, error) {
	raw, err := e.Params.Lookup(condorcfg.KeyCoreDropRules)
	if err != nil {
		if errors.Is(err, condorcfg.ErrNotSet) {
			return nil, nil
		}
		return nil, err
	}
	rules, invalid := ParseCoreRules(raw)
	for _, entry := range invalid {
		log.FromCtx(ctx).Error("Skipping invalid core drop rule", "entry", entry)
	}
	return rules, nil
}
