// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rod6/log6"

	"github.com/lsmdb/rodis/internal/config"
	"github.com/lsmdb/rodis/internal/engine"
	"github.com/lsmdb/rodis/internal/expiry"
	"github.com/lsmdb/rodis/internal/metrics"
	"github.com/lsmdb/rodis/internal/raftengine"
	"github.com/lsmdb/rodis/internal/server"
	"github.com/lsmdb/rodis/internal/txn"
)

func main() {
	configFile := flag.String("c", "rodis.toml", "rodis config file path")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log6.Fatal("load/parse config file error: %v", err)
	}
	log6.ParseLevel(cfg.Log.Level)

	eng, err := openEngine(cfg)
	if err != nil {
		log6.Fatal("open storage engine error: %v", err)
	}
	defer eng.Close()

	runner := txn.New(eng, cfg.Txn.RetryCount)

	sweeper := expiry.NewSweeper(eng, 0, 0)
	if cfg.Expiry.SweepIntervalMs > 0 {
		sweeper.Interval = time.Duration(cfg.Expiry.SweepIntervalMs) * time.Millisecond
	}
	if cfg.Expiry.SweepBatch > 0 {
		sweeper.Batch = cfg.Expiry.SweepBatch
	}
	sweeper.Start()
	defer sweeper.Stop()

	if cfg.Metrics.Listen != "" {
		go metrics.Serve(cfg.Metrics.Listen)
	}

	srv := server.New(cfg.Server.Listen, cfg.Server.RequirePass, eng, runner, cfg.Server.Workers)
	defer srv.Close()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go srv.Run()

	log6.Info("rodis listening on %v (storage.backend=%v)", cfg.Server.Listen, cfg.Storage.Backend)
	<-sc
}

func openEngine(cfg config.Config) (engine.Facade, error) {
	if cfg.Storage.Backend == "raft" {
		return raftengine.Open(raftengine.Config{
			NodeID:    cfg.Storage.Raft.NodeID,
			BindAddr:  cfg.Storage.Raft.BindAddr,
			DataDir:   cfg.Storage.DataDir,
			Seeds:     cfg.Storage.Raft.Seeds,
			Bootstrap: len(cfg.Storage.Raft.Seeds) == 0,
		})
	}
	return engine.Open(cfg.Storage.DataDir)
}
