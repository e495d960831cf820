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

// Package oracle implements the client side of the job metadata oracle
// protocol. The oracle maps an IP address to the classad of the batch job
// bound to that address.
//
// The protocol is deliberately primitive: one TCP connection per request,
// an ASCII request of the form "REQUEST\n<ip>", and an ASCII response
// whose first line is the sentinel "FOUND" or "NOFOUND". On FOUND the
// remaining lines form a classad record that must contain an Owner
// attribute. There is no pooling and no caching; every new flow costs one
// round trip, which keeps the oracle authoritative for the flow's very
// first packet.
package oracle

import (
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/condorflow/condorflow/pkg/classad"
	"github.com/condorflow/condorflow/pkg/condorcfg"
	"github.com/condorflow/condorflow/pkg/log"
	"github.com/condorflow/condorflow/pkg/private/serrors"
)

// AttrOwner is the classad attribute naming the job owner. A FOUND
// response without it is malformed.
const AttrOwner = "Owner"

const (
	sentinelFound    = "FOUND"
	sentinelNotFound = "NOFOUND"

	// maxResponse bounds the size of an oracle response.
	maxResponse = 4096
)

// ErrMalformed indicates a response that violates the oracle protocol.
var ErrMalformed = errors.New("malformed oracle response")

// Response is the oracle's answer for one IP address.
type Response struct {
	// Found indicates whether the IP belongs to a tracked job.
	Found bool
	// Ad is the job classad; nil unless Found.
	Ad classad.Classad
}

// Owner returns the job owner, or the empty string for a NotFound
// response.
func (r Response) Owner() string {
	if !r.Found {
		return ""
	}
	owner, _ := r.Ad.Lookup(AttrOwner)
	return owner
}

// Resolver resolves an IP address to job ownership metadata.
type Resolver interface {
	Resolve(ctx context.Context, ip netip.Addr) (Response, error)
}

// Config configures a Client.
type Config struct {
	// DialTimeout bounds the TCP connect to the oracle.
	DialTimeout time.Duration
	// RequestTimeout bounds one request/response exchange.
	RequestTimeout time.Duration
	// Retry enables a single retry of a failed exchange before the error
	// is surfaced to the policy layer.
	Retry bool
}

// Client implements Resolver against a live oracle. The oracle address is
// looked up from the param source on every call, so address changes take
// effect without a restart. A circuit breaker keeps a dead oracle from
// stalling every new flow for the full dial timeout.
type Client struct {
	params  condorcfg.Source
	cfg     Config
	breaker *gobreaker.CircuitBreaker
}

// NewClient creates a client resolving through the oracle named by the
// HTCONDOR_MODULE_HOST and HTCONDOR_MODULE_PORT parameters.
func NewClient(params condorcfg.Source, cfg Config) *Client {
	return &Client{
		params: params,
		cfg:    cfg,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "oracle",
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Info("Oracle circuit breaker state change",
					"from", from.String(), "to", to.String())
			},
		}),
	}
}

// Resolve implements Resolver.
func (c *Client) Resolve(ctx context.Context, ip netip.Addr) (Response, error) {
	resp, err := c.exchange(ctx, ip)
	if err == nil || !c.cfg.Retry || ctx.Err() != nil ||
		errors.Is(err, gobreaker.ErrOpenState) {

		return resp, err
	}
	log.FromCtx(ctx).Debug("Retrying oracle request", "ip", ip, "err", err)
	return c.exchange(ctx, ip)
}

func (c *Client) exchange(ctx context.Context, ip netip.Addr) (Response, error) {
	r, err := c.breaker.Execute(func() (any, error) {
		return c.exchangeOnce(ctx, ip)
	})
	if err != nil {
		return Response{}, err
	}
	return r.(Response), nil
}

func (c *Client) exchangeOnce(ctx context.Context, ip netip.Addr) (Response, error) {
	addr, err := c.address()
	if err != nil {
		return Response{}, err
	}
	d := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Response{}, serrors.Wrap("connecting to oracle", err, "oracle", addr)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.cfg.RequestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return Response{}, serrors.Wrap("setting oracle deadline", err)
	}
	if _, err := conn.Write([]byte("REQUEST\n" + ip.String())); err != nil {
		return Response{}, serrors.Wrap("sending oracle request", err,
			"oracle", addr, "ip", ip)
	}
	// The oracle closes the connection after the response; read until EOF
	// so a sentinel and body flushed separately still arrive whole.
	buf, err := io.ReadAll(io.LimitReader(conn, maxResponse))
	if err != nil && len(buf) == 0 {
		return Response{}, serrors.Wrap("receiving oracle response", err,
			"oracle", addr, "ip", ip)
	}
	return parseResponse(strings.TrimSpace(string(buf)))
}

// address resolves the oracle host and port from the param source. Both
// keys are validated once at startup, but stay polled per call.
func (c *Client) address() (string, error) {
	host, err := c.params.Lookup(condorcfg.KeyOracleHost)
	if err != nil {
		return "", serrors.Wrap("oracle host unconfigured", err)
	}
	port, err := c.params.Lookup(condorcfg.KeyOraclePort)
	if err != nil {
		return "", serrors.Wrap("oracle port unconfigured", err)
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return "", serrors.New("invalid oracle port", "port", port)
	}
	return net.JoinHostPort(host, port), nil
}

func parseResponse(raw string) (Response, error) {
	sentinel, body, _ := strings.Cut(raw, "\n")
	switch strings.TrimSpace(sentinel) {
	case sentinelNotFound:
		return Response{}, nil
	case sentinelFound:
		ad, err := classad.Parse(body)
		if err != nil {
			return Response{}, serrors.Join(ErrMalformed, err)
		}
		if _, ok := ad.Lookup(AttrOwner); !ok {
			return Response{}, serrors.Join(ErrMalformed, nil,
				"reason", "missing Owner attribute")
		}
		return Response{Found: true, Ad: ad}, nil
	default:
		return Response{}, serrors.Join(ErrMalformed, nil,
			"reason", "unknown sentinel", "sentinel", sentinel)
	}
}
