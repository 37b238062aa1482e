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

// Command berserker is the thin CLI front end: a single positional
// config-path argument, default ./workload.toml (spec.md 6).
package main

import (
	"context"
	"os"

	"github.com/berserker/berserker/internal/berserker"
	"github.com/berserker/berserker/internal/config"
)

func main() {
	log := berserker.NewLogger()

	if descRaw, ok := berserker.IsChild(); ok {
		desc, err := berserker.DecodeDescriptor(descRaw)
		if err != nil {
			log.WithError(err).Fatal("failed to decode worker descriptor")
		}
		if err := berserker.RunChild(context.Background(), log, desc); err != nil {
			log.WithError(err).Fatal("child worker exited with error")
		}
		return
	}

	path := "./workload.toml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	self, err := os.Executable()
	if err != nil {
		log.WithError(err).Fatal("failed to resolve own executable path")
	}

	sup := berserker.New(cfg, log, self)
	if err := sup.Run(); err != nil {
		log.WithError(err).Error("reap failed")
		os.Exit(1)
	}
}
