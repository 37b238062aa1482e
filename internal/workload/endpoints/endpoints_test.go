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

package endpoints

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(log)
}

func freePort(t *testing.T) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find a free port: %v", err)
	}
	defer ln.Close()
	return uint16(ln.Addr().(*net.TCPAddr).Port)
}

func TestRunZeroPortLenIsNoOp(t *testing.T) {
	w := New(Config{RestartInterval: 0, PortLen: 0}, testLogger())
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run() with PortLen=0 returned error: %v", err)
	}
}

func TestHoldListenerBindsAndReleases(t *testing.T) {
	port := freePort(t)
	w := New(Config{RestartInterval: 0, PortStart: port, PortLen: 1}, testLogger())

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	ln, err := net.Listen("tcp", "0.0.0.0:"+strconv.Itoa(int(port)))
	if err != nil {
		t.Fatalf("expected port %d to be free again after churn, got: %v", port, err)
	}
	ln.Close()
}

func TestHoldListenerRespectsRestartInterval(t *testing.T) {
	port := freePort(t)
	w := New(Config{RestartInterval: 1, PortStart: port, PortLen: 1}, testLogger())

	start := time.Now()
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("Run() returned after %s, want at least the 1s restart interval", elapsed)
	}
}
