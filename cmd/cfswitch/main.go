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

package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/condorflow/condorflow/pkg/condorcfg"
	"github.com/condorflow/condorflow/pkg/log"
	"github.com/condorflow/condorflow/pkg/oracle"
	"github.com/condorflow/condorflow/pkg/private/serrors"
	"github.com/condorflow/condorflow/private/app/launcher"
	"github.com/condorflow/condorflow/switchd"
	"github.com/condorflow/condorflow/switchd/config"
)

var globalCfg config.Config

func main() {
	application := launcher.Application{
		TOMLConfig: &globalCfg,
		ShortName:  "Condorflow Switch Controller",
		Main:       realMain,
	}
	application.Run()
}

func realMain(ctx context.Context) error {
	g, errCtx := errgroup.WithContext(ctx)
	metrics := switchd.NewMetrics()

	params := &condorcfg.File{Path: globalCfg.Params.File}
	resolver := oracle.NewClient(params, oracle.Config{
		DialTimeout:    globalCfg.Oracle.DialTimeout.Duration,
		RequestTimeout: globalCfg.Oracle.RequestTimeout.Duration,
		Retry:          !globalCfg.Oracle.DisableRetry,
	})
	controller := &switchd.Switchd{
		Params:   params,
		Resolver: resolver,
		FailMode: globalCfg.Oracle.FailMode,
		Metrics:  metrics,
	}
	// The oracle address and the core switch identity must be present
	// before any switch connects; everything else in the param file may
	// change while running.
	if err := controller.Validate(); err != nil {
		return serrors.Wrap("validating params", err, "file", globalCfg.Params.File)
	}
	defer controller.Close()
	log.Info("Controller ready",
		"id", globalCfg.General.ID,
		"params", globalCfg.Params.File,
		"fail_mode", globalCfg.Oracle.FailMode)

	if addr := globalCfg.Metrics.Prometheus; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{Addr: addr, Handler: mux}
		g.Go(func() error {
			defer log.HandlePanic()
			log.Info("Exposing metrics", "addr", addr)
			err := server.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return serrors.Wrap("serving metrics", err)
			}
			return nil
		})
		g.Go(func() error {
			defer log.HandlePanic()
			<-errCtx.Done()
			return server.Close()
		})
	}
	g.Go(func() error {
		defer log.HandlePanic()
		return controller.Run(errCtx)
	})
	return g.Wait()
}
