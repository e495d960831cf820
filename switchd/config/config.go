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

// Package config describes the static process configuration of the
// controller. The authorization parameters themselves (blocked users,
// whitelist, oracle address, core rules) are not here: they live in the
// HTCondor param file and are re-read per decision.
package config

import (
	"io"
	"time"

	"github.com/condorflow/condorflow/pkg/log"
	"github.com/condorflow/condorflow/pkg/policy"
	"github.com/condorflow/condorflow/pkg/private/serrors"
	"github.com/condorflow/condorflow/pkg/private/util"
	libconfig "github.com/condorflow/condorflow/private/config"
)

const (
	// DefaultOracleDialTimeout bounds the TCP connect to the oracle.
	DefaultOracleDialTimeout = 2 * time.Second
	// DefaultOracleRequestTimeout bounds one oracle exchange.
	DefaultOracleRequestTimeout = 3 * time.Second
)

var _ libconfig.Config = (*Config)(nil)

// Config is the controller configuration.
type Config struct {
	General General    `toml:"general,omitempty"`
	Logging log.Config `toml:"log,omitempty"`
	Metrics Metrics    `toml:"metrics,omitempty"`
	Params  Params     `toml:"params,omitempty"`
	Oracle  Oracle     `toml:"oracle,omitempty"`
}

// InitDefaults initializes the default values of all fields.
func (cfg *Config) InitDefaults() {
	cfg.Logging.InitDefaults()
	libconfig.InitAll(&cfg.General, &cfg.Metrics, &cfg.Params, &cfg.Oracle)
}

// Validate validates the config.
func (cfg *Config) Validate() error {
	return libconfig.ValidateAll(&cfg.General, &cfg.Metrics, &cfg.Params, &cfg.Oracle)
}

// Sample writes a commented sample config to dst.
func (cfg *Config) Sample(dst io.Writer, path libconfig.Path) {
	libconfig.WriteSample(dst, path,
		&cfg.General, &cfg.Logging, &cfg.Metrics, &cfg.Params, &cfg.Oracle)
}

// General holds process wide settings.
type General struct {
	libconfig.NoValidator
	// ID identifies this controller instance in logs and metrics.
	ID string `toml:"id,omitempty"`
}

// InitDefaults initializes the default values of all fields.
func (g *General) InitDefaults() {
	if g.ID == "" {
		g.ID = "cfswitch"
	}
}

// Sample writes the sample for the general section.
func (g *General) Sample(dst io.Writer, path libconfig.Path) {
	libconfig.WriteString(dst, `
# Identifier of this controller instance. (default "cfswitch")
id = "cfswitch"
`)
}

// ConfigName returns the name of the config block.
func (g *General) ConfigName() string {
	return "general"
}

// Metrics configures the metrics endpoint.
type Metrics struct {
	libconfig.NoDefaulter
	libconfig.NoValidator
	// Prometheus is the address the prometheus exporter listens on. The
	// exporter is disabled if empty.
	Prometheus string `toml:"prometheus,omitempty"`
}

// Sample writes the sample for the metrics section.
func (m *Metrics) Sample(dst io.Writer, path libconfig.Path) {
	libconfig.WriteString(dst, `
# Address the prometheus exporter listens on, e.g. "127.0.0.1:30452".
# The exporter is disabled if empty. (default "")
prometheus = ""
`)
}

// ConfigName returns the name of the config block.
func (m *Metrics) ConfigName() string {
	return "metrics"
}

// Params locates the HTCondor param file.
type Params struct {
	libconfig.NoDefaulter
	// File is the path of the condor_config style param file. It is
	// re-read on every decision.
	File string `toml:"file,omitempty"`
}

// Validate validates the params section.
func (p *Params) Validate() error {
	if p.File == "" {
		return serrors.New("params.file must be set")
	}
	return nil
}

// Sample writes the sample for the params section.
func (p *Params) Sample(dst io.Writer, path libconfig.Path) {
	libconfig.WriteString(dst, `
# Path of the condor_config style param file holding BLOCKED_USERS,
# BLOCKED_USERS_OUTSIDE, WHITE_LIST_IP, HTCONDOR_MODULE_HOST,
# HTCONDOR_MODULE_PORT, CORE_SWITCH_ID and CORE_DROP_RULES. The file is
# re-read on every decision.
file = "/etc/condor/condor_config.local"
`)
}

// ConfigName returns the name of the config block.
func (p *Params) ConfigName() string {
	return "params"
}

// Oracle configures the behavior of the oracle client.
type Oracle struct {
	libconfig.NoValidator
	// DialTimeout bounds the TCP connect to the oracle.
	DialTimeout util.DurWrap `toml:"dial_timeout,omitempty"`
	// RequestTimeout bounds one oracle exchange.
	RequestTimeout util.DurWrap `toml:"request_timeout,omitempty"`
	// DisableRetry disables the single retry of a failed exchange.
	DisableRetry bool `toml:"disable_retry,omitempty"`
	// FailMode decides flows whose authorization cannot be answered:
	// "open" degrades to plain L2 learning, "closed" drops.
	FailMode policy.FailMode `toml:"fail_mode,omitempty"`
}

// InitDefaults initializes the default values of all fields.
func (o *Oracle) InitDefaults() {
	if o.DialTimeout.Duration == 0 {
		o.DialTimeout.Duration = DefaultOracleDialTimeout
	}
	if o.RequestTimeout.Duration == 0 {
		o.RequestTimeout.Duration = DefaultOracleRequestTimeout
	}
}

// Sample writes the sample for the oracle section.
func (o *Oracle) Sample(dst io.Writer, path libconfig.Path) {
	libconfig.WriteString(dst, `
# Timeout for connecting to the oracle. (default "2s")
dial_timeout = "2s"

# Timeout for one oracle request/response exchange. (default "3s")
request_timeout = "3s"

# Disable the single retry of a failed oracle exchange. (default false)
disable_retry = false

# Outcome for flows whose authorization cannot be answered, "open" or
# "closed". Open degrades to plain L2 learning, closed drops the flow.
# (default "open")
fail_mode = "open"
`)
}

// ConfigName returns the name of the config block.
func (o *Oracle) ConfigName() string {
	return "oracle"
}
