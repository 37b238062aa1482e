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

// Package config loads the layered TOML + environment configuration
// described in spec.md 6: an optional system-wide file, an optional
// path given on the command line, and BERSERKER__-prefixed environment
// overrides, applied in that order.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	systemConfigPath = "/etc/berserker/workload.toml"
	envPrefix        = "BERSERKER__"
	envSeparator     = "__"
)

// Distribution is the tagged union backing an Endpoints workload's
// port-count draw.
type Distribution struct {
	Kind     string  `toml:"distribution"`
	NPorts   uint64  `toml:"n_ports"`
	Exponent float64 `toml:"exponent"`
	Lower    uint64  `toml:"lower"`
	Upper    uint64  `toml:"upper"`
}

// Address is a 4-octet IPv4 address, accepted in the TOML source as an
// array of 4 integers or a dotted-quad string (spec.md 6).
type Address [4]byte

// String renders the address in dotted-quad form.
func (a Address) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", a[0], a[1], a[2], a[3])
}

// UnmarshalTOML implements toml.Unmarshaler, accepting either shape the
// schema allows.
func (a *Address) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case []interface{}:
		if len(v) != 4 {
			return fmt.Errorf("address array must have exactly 4 elements, got %d", len(v))
		}
		for i, e := range v {
			n, err := toInt64(e)
			if err != nil {
				return fmt.Errorf("address[%d]: %w", i, err)
			}
			a[i] = byte(n)
		}
		return nil
	case string:
		return a.parseString(v)
	default:
		return fmt.Errorf("unsupported address representation %T", data)
	}
}

func (a *Address) parseString(s string) error {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	sep := "."
	if strings.Contains(s, ",") {
		sep = ","
	}
	parts := strings.Split(s, sep)
	if len(parts) != 4 {
		return fmt.Errorf("address string %q must have 4 octets", s)
	}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 255 {
			return fmt.Errorf("invalid octet %q in address %q", p, s)
		}
		a[i] = byte(n)
	}
	return nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("cannot interpret %v (%T) as an integer", v, v)
	}
}

// Workload is the tagged union of spec.md 3's Workload type. Exactly
// one of the workload-specific blocks below is meaningful, selected by
// Type.
type Workload struct {
	Type string `toml:"type"`

	// Endpoints. The schema keeps [workload] a single flat TOML table,
	// so the distribution fields are decoded directly here rather than
	// into a nested Distribution value.
	DistributionKind string  `toml:"distribution"`
	NPorts           uint64  `toml:"n_ports"`
	Exponent         float64 `toml:"exponent"`
	Lower            uint64  `toml:"lower"`
	Upper            uint64  `toml:"upper"`

	// Processes
	ArrivalRate   float64 `toml:"arrival_rate"`
	DepartureRate float64 `toml:"departure_rate"`
	RandomProcess bool    `toml:"random_process"`

	// Syscalls
	TightLoop bool   `toml:"tight_loop"`
	SyscallNr string `toml:"syscall_nr"`

	// Network
	Server       bool    `toml:"server"`
	Address      Address `toml:"address"`
	TargetPort   uint16  `toml:"target_port"`
	NConnections uint32  `toml:"nconnections"`
	SendInterval uint64  `toml:"send_interval"`
	ConnsPerAddr uint32  `toml:"conns_per_addr"`

	// Bpf. Not part of spec.md's own workload.type enumeration, but
	// present in original_source's worker/bpf.rs; supplemented here per
	// SPEC_FULL.md's "Supplemented feature" section.
	NPrograms  uint32 `toml:"nprogs"`
	Tracepoint uint64 `toml:"tracepoint"`
}

// AsDistribution extracts the Endpoints workload's distribution
// parameters into the standalone Distribution value the port allocator
// and endpoints worker operate on.
func (w Workload) AsDistribution() Distribution {
	return Distribution{
		Kind:     w.DistributionKind,
		NPorts:   w.NPorts,
		Exponent: w.Exponent,
		Lower:    w.Lower,
		Upper:    w.Upper,
	}
}

// Config is the top-level, immutable-after-load WorkloadConfig of
// spec.md 3.
type Config struct {
	RestartInterval uint64   `toml:"restart_interval"`
	PerCore         bool     `toml:"per_core"`
	Workers         uint64   `toml:"workers"`
	Duration        uint64   `toml:"duration"`
	Workload        Workload `toml:"workload"`
}

// Default returns the schema's documented defaults (spec.md 6):
// per_core=true, workers=1, duration=0 (unbounded), syscalls'
// tight_loop=false and syscall_nr=getpid, network's send_interval
// defaulting into the 10-100ms range and conns_per_addr=1.
func Default() Config {
	return Config{
		PerCore:  true,
		Workers:  1,
		Duration: 0,
		Workload: Workload{
			SyscallNr:    "getpid",
			SendInterval: 50,
			ConnsPerAddr: 1,
		},
	}
}

// Load implements the three-layer precedence of spec.md 6: the system
// config, then the path argument, then BERSERKER__ environment
// overrides, each overriding the previous where a key is present.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(systemConfigPath); err == nil {
		if _, err := toml.DecodeFile(systemConfigPath, &cfg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", systemConfigPath, err)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, fmt.Errorf("decoding %s: %w", path, err)
			}
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Workers == 0 {
		return fmt.Errorf("workers must be >= 1")
	}
	switch cfg.Workload.Type {
	case "endpoints":
		switch cfg.Workload.DistributionKind {
		case "zipf", "uniform":
		default:
			return fmt.Errorf("endpoints workload requires distribution = \"zipf\" or \"uniform\"")
		}
	case "processes":
		if cfg.Workload.ArrivalRate < 0 || cfg.Workload.DepartureRate < 0 {
			return fmt.Errorf("processes workload requires non-negative rates")
		}
	case "syscalls":
		if cfg.Workload.SyscallNr == "" {
			return fmt.Errorf("syscalls workload requires syscall_nr")
		}
	case "network":
		if cfg.Workload.TargetPort == 0 {
			return fmt.Errorf("network workload requires target_port")
		}
	case "bpf":
		if cfg.Workload.NPrograms == 0 {
			return fmt.Errorf("bpf workload requires nprogs >= 1")
		}
	default:
		return fmt.Errorf("unknown workload.type %q", cfg.Workload.Type)
	}
	return nil
}

// applyEnvOverrides walks os.Environ for BERSERKER__-prefixed keys and
// sets the matching struct field via reflection, navigating nested
// structs by toml tag the way BERSERKER__WORKLOAD__ARRIVAL_RATE
// resolves to Config.Workload.ArrivalRate. No env-overlay library
// exists anywhere in the retrieved pack, so this one piece of ambient
// configuration plumbing is hand-rolled reflection; see DESIGN.md.
func applyEnvOverrides(cfg *Config) error {
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, envPrefix) {
			continue
		}
		path := strings.Split(strings.TrimPrefix(k, envPrefix), envSeparator)
		if err := setByPath(reflect.ValueOf(cfg).Elem(), path, v); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
	}
	return nil
}

func setByPath(v reflect.Value, path []string, value string) error {
	if len(path) == 0 {
		return fmt.Errorf("empty path")
	}
	field, err := fieldByTag(v, path[0])
	if err != nil {
		return err
	}
	if len(path) > 1 {
		if field.Kind() != reflect.Struct {
			return fmt.Errorf("%s is not a nested table", path[0])
		}
		return setByPath(field, path[1:], value)
	}
	return setScalar(field, value)
}

func fieldByTag(v reflect.Value, tag string) (reflect.Value, error) {
	t := v.Type()
	want := strings.ToLower(tag)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := strings.Split(f.Tag.Get("toml"), ",")[0]
		if strings.ToLower(name) == want {
			return v.Field(i), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("no field for key %q", tag)
}

func setScalar(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Array:
		if field.Type() == reflect.TypeOf(Address{}) {
			var a Address
			if err := a.parseString(value); err != nil {
				return err
			}
			field.Set(reflect.ValueOf(a))
			return nil
		}
		return fmt.Errorf("unsupported array field type %s", field.Type())
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}
