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

package berserker

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the shared logrus root logger, level controlled by
// BERSERKER_LOG_LEVEL (default info) since it must be readable before
// the layered config exists (spec.md's config loader is an external
// collaborator, out of this component's scope).
func NewLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level := logrus.InfoLevel
	if raw := os.Getenv("BERSERKER_LOG_LEVEL"); raw != "" {
		if parsed, err := logrus.ParseLevel(raw); err == nil {
			level = parsed
		}
	}
	l.SetLevel(level)
	return l
}

// WorkerLogger returns the per-worker entry carrying cpu/worker/workload
// fields, per SPEC_FULL.md's AMBIENT STACK logging section.
func WorkerLogger(root *logrus.Logger, base BaseConfig, workloadType string) *logrus.Entry {
	return root.WithFields(logrus.Fields{
		"cpu":      base.CPUID,
		"worker":   base.ProcessIndex,
		"workload": workloadType,
	})
}

// SupervisorLogger returns the root entry tagged as the supervisor
// component.
func SupervisorLogger(root *logrus.Logger) *logrus.Entry {
	return root.WithField("component", "supervisor")
}
