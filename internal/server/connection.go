// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

package server

import (
	"bufio"
	"io"
	"net"

	"github.com/pborman/uuid"
	"github.com/rod6/log6"

	"github.com/lsmdb/rodis/internal/command"
	"github.com/lsmdb/rodis/internal/metrics"
	"github.com/lsmdb/rodis/internal/resp"
)

// conn is one client's live TCP connection, holding the per-connection
// auth flag and buffered reader/writer the RESP layer needs.
type conn struct {
	id     string
	net    net.Conn
	reader *bufio.Reader
	server *Server
	ex     *command.Extras
}

func (s *Server) newConn(nc net.Conn) {
	id := uuid.New()
	c := &conn{
		id:     id,
		net:    nc,
		reader: bufio.NewReader(nc),
		server: s,
		ex: &command.Extras{
			Engine:      s.Engine,
			Runner:      s.Runner,
			Writer:      bufio.NewWriter(nc),
			RequirePass: s.RequirePass,
		},
	}
	s.register(c)
	metrics.ConnectedClients.Inc()
	log6.Debug("New connection: %v", id)
	go c.handle()
}

func (c *conn) handle() {
	for {
		_, v, err := resp.Parse(c.reader)
		if err != nil {
			select {
			case <-c.server.quit:
				return
			default:
			}
			if err == io.EOF {
				log6.Debug("Client closed connection %v.", c.id)
				c.close()
				return
			}
			log6.Warn("Connection %v parse error: %v", c.id, err)
			continue
		}

		arr, ok := v.(resp.Array)
		if !ok {
			log6.Error("Connection %v sent a non-array command.", c.id)
			c.net.Write([]byte("-ERR wrong input format\r\n"))
			continue
		}

		c.server.sem <- struct{}{}
		err = command.Handle(arr, c.ex)
		<-c.server.sem
		if err != nil {
			log6.Error("Connection %v write error: %v", c.id, err)
			c.close()
			return
		}
		if err := c.ex.Writer.Flush(); err != nil {
			log6.Error("Connection %v flush error: %v", c.id, err)
			c.close()
			return
		}
	}
}

func (c *conn) close() {
	if err := c.net.Close(); err != nil {
		log6.Debug("Connection %v close error: %v", c.id, err)
	}
	c.server.unregister(c.id)
	metrics.ConnectedClients.Dec()
	log6.Debug("Connection %v closed.", c.id)
}
