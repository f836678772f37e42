// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

package raftengine

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/hashicorp/memberlist"
	"github.com/hashicorp/raft"
	"github.com/rod6/log6"
)

// DiscoveryConfig configures memberlist-based cluster membership for one
// node (§10.1). BindAddr is the Raft transport address (host:port);
// gossip binds to the same host one port above it, and BindAddr itself
// is advertised to peers as gossip node metadata exactly as
// yndnr-tokmesh-go's clusterserver.Discovery does it.
type DiscoveryConfig struct {
	NodeID   string
	BindAddr string
	Seeds    []string
	Raft     *raft.Raft
}

// Discovery wraps a memberlist.Memberlist, translating gossip join
// events into raft.AddVoter calls when this node is the current Raft
// leader. It does not itself decide cluster membership; Raft's own
// quorum config is the source of truth, and a join that arrives while
// this node is a follower is simply ignored (the leader will observe
// the same gossip event and add the voter itself).
type Discovery struct {
	list *memberlist.Memberlist
	raft *raft.Raft
}

// NewDiscovery starts gossip membership and, if seeds are given, joins
// the existing cluster through them.
func NewDiscovery(cfg DiscoveryConfig) (*Discovery, error) {
	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = cfg.NodeID
	host, portStr, err := net.SplitHostPort(cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("parsing raft bind_addr %q: %w", cfg.BindAddr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("parsing raft bind_addr port %q: %w", cfg.BindAddr, err)
	}
	mlConfig.BindAddr = host
	mlConfig.BindPort = port + 1 // gossip runs one port above the raft transport
	mlConfig.LogOutput = log6Writer{}

	d := &Discovery{raft: cfg.Raft}
	mlConfig.Delegate = &metadataDelegate{raftAddr: []byte(cfg.BindAddr)}
	mlConfig.Events = &eventDelegate{discovery: d}

	list, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("create memberlist: %w", err)
	}
	d.list = list

	if len(cfg.Seeds) > 0 {
		n, err := list.Join(cfg.Seeds)
		if err != nil {
			list.Shutdown()
			return nil, fmt.Errorf("join seed nodes: %w", err)
		}
		log6.Info("raft node %v joined cluster via %d seed(s)", cfg.NodeID, n)
	} else {
		log6.Info("raft node %v started discovery in bootstrap mode", cfg.NodeID)
	}
	return d, nil
}

// Members returns the current gossip membership view.
func (d *Discovery) Members() []*memberlist.Node {
	if d.list == nil {
		return nil
	}
	return d.list.Members()
}

// Shutdown leaves the cluster and stops the gossip loop.
func (d *Discovery) Shutdown() error {
	if d.list == nil {
		return nil
	}
	if err := d.list.Leave(0); err != nil {
		log6.Warn("raft discovery leave error: %v", err)
	}
	return d.list.Shutdown()
}

// eventDelegate implements memberlist.EventDelegate, turning join events
// into a leader-only raft.AddVoter call.
type eventDelegate struct {
	discovery *Discovery
}

func (e *eventDelegate) NotifyJoin(node *memberlist.Node) {
	raftAddr := string(node.Meta)
	if raftAddr == "" {
		raftAddr = net.JoinHostPort(node.Addr.String(), strconv.Itoa(int(node.Port)))
	}
	log6.Info("raft discovery: node %v joined at %v", node.Name, raftAddr)

	r := e.discovery.raft
	if r == nil || r.State() != raft.Leader {
		return
	}
	future := r.AddVoter(raft.ServerID(node.Name), raft.ServerAddress(raftAddr), 0, 0)
	if err := future.Error(); err != nil {
		log6.Warn("raft discovery: AddVoter(%v) failed: %v", node.Name, err)
	}
}

func (e *eventDelegate) NotifyLeave(node *memberlist.Node) {
	log6.Info("raft discovery: node %v left", node.Name)
	r := e.discovery.raft
	if r == nil || r.State() != raft.Leader {
		return
	}
	if future := r.RemoveServer(raft.ServerID(node.Name), 0, 0); future.Error() != nil {
		log6.Warn("raft discovery: RemoveServer(%v) failed: %v", node.Name, future.Error())
	}
}

func (e *eventDelegate) NotifyUpdate(node *memberlist.Node) {}

// metadataDelegate implements memberlist.Delegate just enough to attach
// this node's Raft transport address to its gossip metadata; every
// other method is a no-op since discovery carries no other user state.
type metadataDelegate struct {
	raftAddr []byte
}

func (m *metadataDelegate) NodeMeta(limit int) []byte {
	if len(m.raftAddr) > limit {
		return m.raftAddr[:limit]
	}
	return m.raftAddr
}
func (m *metadataDelegate) NotifyMsg([]byte)                           {}
func (m *metadataDelegate) GetBroadcasts(overhead, limit int) [][]byte { return nil }
func (m *metadataDelegate) LocalState(join bool) []byte                { return nil }
func (m *metadataDelegate) MergeRemoteState(buf []byte, join bool)     {}

// log6Writer adapts log6's package-level logger to the io.Writer
// memberlist wants for LogOutput.
type log6Writer struct{}

func (log6Writer) Write(p []byte) (int, error) {
	log6.Debug(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
