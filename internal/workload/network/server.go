// Copyright 2024 The Berserker Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package network

import (
	"bufio"
	"context"
	"fmt"
	"net"
)

// responsePayload is the fixed reply server mode sends for every line
// received, per spec.md 8 scenario 5 and original_source's
// worker/network.rs server handler.
var responsePayload = []byte("hello\n")

// runServer binds a kernel TCP listener and, per accepted connection,
// reads lines and replies with the fixed payload until EOF or an error
// (spec.md 4.6). It has no population state: it is "simple" by design.
func (w *Worker) runServer(ctx context.Context) error {
	addr := fmt.Sprintf("%d.%d.%d.%d:%d", w.cfg.Address[0], w.cfg.Address[1], w.cfg.Address[2], w.cfg.Address[3], w.cfg.TargetPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding server listener on %s: %w", addr, err)
	}
	defer ln.Close()
	w.log.Infof("network server listening on %s", addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("accept failed: %w", err)
		}
		go w.handleConn(conn)
	}
}

func (w *Worker) handleConn(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for {
		if _, err := reader.ReadString('\n'); err != nil {
			w.log.WithError(err).Trace("server connection closed")
			return
		}
		if _, err := conn.Write(responsePayload); err != nil {
			w.log.WithError(err).Trace("server write failed")
			return
		}
	}
}
