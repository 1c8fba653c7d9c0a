/*
Copyright 2024 The hypervisor-builder Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package remote

import (
	"context"
	"fmt"
	"sync"
)

// FakeResult scripts the outcome of one command on a FakeRunner.
type FakeResult struct {
	ExitCode int
	Output   string
	Err      error
}

// FakeRunner is an in-memory Runner for tests of code that executes
// remote commands. Results are scripted per command string; unscripted
// commands fail. It records every command it was asked to run.
type FakeRunner struct {
	mu      sync.Mutex
	results map[string]FakeResult
	calls   []string
}

var _ Runner = (*FakeRunner)(nil)

// NewFakeRunner returns an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{results: map[string]FakeResult{}}
}

// Script registers the result returned for an exact command string.
func (f *FakeRunner) Script(cmd string, result FakeResult) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.results[cmd] = result
}

// Run implements Runner.
func (f *FakeRunner) Run(_ context.Context, cmd string) (int, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, cmd)

	result, ok := f.results[cmd]
	if !ok {
		return 0, "", fmt.Errorf("no scripted result for command %q", cmd)
	}

	return result.ExitCode, result.Output, result.Err
}

// Calls returns the commands run so far, in order.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.calls...)
}
