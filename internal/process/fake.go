// pattern: Functional Core

package process

import (
	"context"
	"slices"
	"sync"
)

// Call records one invocation seen by a FakeRunner.
type Call struct {
	Dir  string
	Args []string
}

// FakeRunner is a Runner for tests. It records every call and answers with
// Result/Err, after running Effect (if set) so tests can simulate the files
// a real command would leave behind.
type FakeRunner struct {
	Result Result
	Err    error
	Effect func(dir string, args []string)

	mu    sync.Mutex
	calls []Call
}

// Run implements Runner.
func (f *FakeRunner) Run(_ context.Context, dir string, args ...string) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Dir: dir, Args: slices.Clone(args)})
	f.mu.Unlock()

	if f.Effect != nil {
		f.Effect(dir, args)
	}
	return f.Result, f.Err
}

// Calls returns a copy of the recorded invocations.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}
