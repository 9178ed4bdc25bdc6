// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package procgroup

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/streamrelay/internal/metrics"
)

// Terminate gracefully stops a process group.
// It sends SIGTERM and waits for exited to close. If that does not happen
// within grace it sends SIGKILL and waits up to timeout more.
// exited must be closed by whoever owns cmd.Wait. Safe on nil commands.
func Terminate(cmd *exec.Cmd, exited <-chan struct{}, grace, timeout time.Duration) (forced bool, err error) {
	if cmd == nil || cmd.Process == nil {
		return false, nil
	}

	signal(cmd, syscall.SIGTERM, "SIGTERM")

	select {
	case <-exited:
		metrics.IncProcWait("graceful")
		return false, nil
	case <-time.After(grace):
	}

	signal(cmd, syscall.SIGKILL, "SIGKILL")

	select {
	case <-exited:
		metrics.IncProcWait("forced")
		return true, nil
	case <-time.After(timeout):
		metrics.IncProcWait("stuck")
		return true, ErrKillFailed
	}
}

func signal(cmd *exec.Cmd, sig syscall.Signal, name string) {
	err := Kill(cmd, sig)
	switch {
	case err == nil:
		metrics.IncProcTerminate(name, "sent")
	case errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH):
		metrics.IncProcTerminate(name, "esrch")
	default:
		metrics.IncProcTerminate(name, "error")
	}
}
