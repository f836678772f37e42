// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

// Package server accepts TCP connections speaking the RESP protocol and
// wires each one to the command dispatch layer, mirroring the teacher's
// server/net package but generalized to the txn-runner/engine-facade
// architecture (§9.1, §9.2).
package server

import (
	"net"
	"sync"

	"github.com/rod6/log6"

	"github.com/lsmdb/rodis/internal/engine"
	"github.com/lsmdb/rodis/internal/txn"
)

// DefaultWorkers is the worker count New falls back to when the caller
// passes workers <= 0 (the config's own default for server.workers is
// runtime.NumCPU()).
const DefaultWorkers = 64

// Server accepts connections on one TCP listener and hands each off to a
// per-connection goroutine. Command dispatch itself is bounded by a
// fixed-size worker pool (§11 server.workers) so an unbounded number of
// slow clients can't turn into an unbounded number of concurrently
// executing commands against the storage engine.
type Server struct {
	Listen      string
	RequirePass string
	Engine      engine.Facade
	Runner      *txn.Runner
	Workers     int

	listener net.Listener
	conns    map[string]*conn
	mu       sync.Mutex
	started  bool
	quit     chan struct{}
	sem      chan struct{}
}

// New builds a Server ready to Run. Engine and Runner must already be
// wired by the caller (cmd/rodis-server). workers <= 0 falls back to
// DefaultWorkers.
func New(listen, requirePass string, eng engine.Facade, runner *txn.Runner, workers int) *Server {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Server{
		Listen:      listen,
		RequirePass: requirePass,
		Engine:      eng,
		Runner:      runner,
		Workers:     workers,
		conns:       make(map[string]*conn),
		quit:        make(chan struct{}),
		sem:         make(chan struct{}, workers),
	}
}

// Run blocks accepting connections until Close is called. Callers
// typically invoke it in its own goroutine, as the teacher's main does.
func (s *Server) Run() {
	log6.Info("Server is starting, listen on %v", s.Listen)

	listener, err := net.Listen("tcp", s.Listen)
	if err != nil {
		log6.Error("Server listen on %v failure: %v", s.Listen, err)
		return
	}

	s.mu.Lock()
	s.listener = listener
	s.started = true
	s.mu.Unlock()

	for {
		c, err := listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				log6.Warn("Server accept error: %v", err)
			}
			continue
		}
		go s.newConn(c)
	}
}

// Close stops accepting new connections and closes every live one.
func (s *Server) Close() {
	log6.Info("Server is closing...")
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	close(s.quit)
	s.listener.Close()
	s.started = false
	live := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		live = append(live, c)
	}
	s.mu.Unlock()
	// c.close unregisters itself under s.mu, so it runs after the unlock.
	for _, c := range live {
		c.close()
	}
	log6.Info("Server is down.")
}

func (s *Server) register(c *conn) {
	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
}

func (s *Server) unregister(id string) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
}
