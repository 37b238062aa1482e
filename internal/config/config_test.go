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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
)

func writeTOML(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadEndpointsUniform(t *testing.T) {
	dir := t.TempDir()
	p := writeTOML(t, dir, "workload.toml", `
restart_interval = 1
per_core = false
workers = 2

[workload]
type = "endpoints"
distribution = "uniform"
lower = 2
upper = 4
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RestartInterval != 1 || cfg.PerCore || cfg.Workers != 2 {
		t.Fatalf("unexpected top-level fields: %+v", cfg)
	}
	if cfg.Workload.Type != "endpoints" || cfg.Workload.DistributionKind != "uniform" {
		t.Fatalf("unexpected workload: %+v", cfg.Workload)
	}
	if cfg.Workload.Lower != 2 || cfg.Workload.Upper != 4 {
		t.Fatalf("unexpected bounds: %+v", cfg.Workload)
	}
}

func TestLoadAddressArrayAndString(t *testing.T) {
	dir := t.TempDir()
	p1 := writeTOML(t, dir, "a.toml", `
restart_interval = 1
[workload]
type = "network"
server = false
address = [10, 0, 0, 1]
target_port = 8080
nconnections = 1
arrival_rate = 1.0
departure_rate = 1.0
`)
	cfg, err := Load(p1)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workload.Address != (Address{10, 0, 0, 1}) {
		t.Fatalf("address = %v, want 10.0.0.1", cfg.Workload.Address)
	}

	p2 := writeTOML(t, dir, "b.toml", `
restart_interval = 1
[workload]
type = "network"
server = false
address = "127.0.0.1"
target_port = 9000
nconnections = 1
arrival_rate = 1.0
departure_rate = 1.0
`)
	cfg2, err := Load(p2)
	if err != nil {
		t.Fatal(err)
	}
	if cfg2.Workload.Address != (Address{127, 0, 0, 1}) {
		t.Fatalf("address = %v, want 127.0.0.1", cfg2.Workload.Address)
	}
}

func TestEnvOverrideTakesPrecedence(t *testing.T) {
	dir := t.TempDir()
	p := writeTOML(t, dir, "workload.toml", `
restart_interval = 10
[workload]
type = "processes"
arrival_rate = 1.0
departure_rate = 1.0
random_process = false
`)
	t.Setenv("BERSERKER__WORKLOAD__ARRIVAL_RATE", "7.5")
	t.Setenv("BERSERKER__RESTART_INTERVAL", "99")

	cfg, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workload.ArrivalRate != 7.5 {
		t.Fatalf("arrival_rate = %f, want 7.5 (env override)", cfg.Workload.ArrivalRate)
	}
	if cfg.RestartInterval != 99 {
		t.Fatalf("restart_interval = %d, want 99 (env override)", cfg.RestartInterval)
	}
}

func TestDefaults(t *testing.T) {
	d := Default()
	if !d.PerCore || d.Workers != 1 || d.Duration != 0 {
		t.Fatalf("unexpected defaults: %+v", d)
	}
	if d.Workload.SyscallNr != "getpid" {
		t.Fatalf("default syscall_nr = %q, want getpid", d.Workload.SyscallNr)
	}
}

func TestRoundTripSemanticEquality(t *testing.T) {
	cfg := Default()
	cfg.RestartInterval = 5
	cfg.Workload.Type = "syscalls"
	cfg.Workload.ArrivalRate = 2.5
	cfg.Workload.TightLoop = true
	cfg.Workload.SyscallNr = "getpid"

	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		t.Fatal(err)
	}

	var roundTripped Config
	if _, err := toml.Decode(buf.String(), &roundTripped); err != nil {
		t.Fatal(err)
	}
	if roundTripped != cfg {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", roundTripped, cfg)
	}
}
