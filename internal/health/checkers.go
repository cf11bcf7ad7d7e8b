// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// WritableDirChecker reports whether a directory accepts new files.
type WritableDirChecker struct {
	name string
	path string
}

func NewWritableDirChecker(name, path string) *WritableDirChecker {
	return &WritableDirChecker{name: name, path: path}
}

func (c *WritableDirChecker) Name() string { return c.name }

func (c *WritableDirChecker) Check(_ context.Context) CheckResult {
	if err := checkWritable(c.path); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: c.path}
	}
	return CheckResult{Status: StatusHealthy, Message: "writable"}
}

func checkWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}
	f, err := os.CreateTemp(path, ".write_test-*")
	if err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(filepath.Clean(name))
	return nil
}

// RemoteChecker reports the cached availability of the remote store. An
// unavailable remote only degrades the daemon: saves keep working locally.
type RemoteChecker struct {
	available func() bool
}

func NewRemoteChecker(available func() bool) *RemoteChecker {
	return &RemoteChecker{available: available}
}

func (c *RemoteChecker) Name() string { return "remote" }

func (c *RemoteChecker) Check(_ context.Context) CheckResult {
	if c.available() {
		return CheckResult{Status: StatusHealthy, Message: "available"}
	}
	return CheckResult{Status: StatusDegraded, Message: "unavailable, syncing paused"}
}

// FailuresChecker degrades readiness while sync failures wait for a retry
// or dismissal.
type FailuresChecker struct {
	count func() int
}

func NewFailuresChecker(count func() int) *FailuresChecker {
	return &FailuresChecker{count: count}
}

func (c *FailuresChecker) Name() string { return "sync_failures" }

func (c *FailuresChecker) Check(_ context.Context) CheckResult {
	if n := c.count(); n > 0 {
		return CheckResult{Status: StatusDegraded, Message: fmt.Sprintf("%d unresolved", n)}
	}
	return CheckResult{Status: StatusHealthy}
}

// StateChecker degrades readiness while the session sits in a failure state.
type StateChecker struct {
	state  func() string
	failed string
}

func NewStateChecker(state func() string, failed string) *StateChecker {
	return &StateChecker{state: state, failed: failed}
}

func (c *StateChecker) Name() string { return "session" }

func (c *StateChecker) Check(_ context.Context) CheckResult {
	s := c.state()
	if s == c.failed {
		return CheckResult{Status: StatusDegraded, Message: s}
	}
	return CheckResult{Status: StatusHealthy, Message: s}
}
