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

// Package berrors defines the small error taxonomy shared across
// workload payloads.
package berrors

import "fmt"

// Internal wraps an error that should abort the current payload run and
// let the caller's outer loop rebuild the payload from scratch. The
// network workload raises this when a socket handle fails to resolve
// to a live connection.
type Internal struct {
	Op  string
	Err error
}

func (e *Internal) Error() string {
	return fmt.Sprintf("internal error during %s: %v", e.Op, e.Err)
}

func (e *Internal) Unwrap() error { return e.Err }

// NewInternal wraps err as an Internal error tagged with the operation
// that failed.
func NewInternal(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Internal{Op: op, Err: err}
}
