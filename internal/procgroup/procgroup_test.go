// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build linux

package procgroup

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startGroup(t *testing.T, script string) (*exec.Cmd, <-chan struct{}) {
	t.Helper()
	cmd := exec.Command("sh", "-c", script)
	Set(cmd)
	require.NoError(t, cmd.Start())

	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()
	return cmd, exited
}

func TestKill_ReachesWholeGroup(t *testing.T) {
	cmd, exited := startGroup(t, "sleep 10 & sleep 10")
	pid := cmd.Process.Pid

	// Wait a moment for the shell to spawn children
	time.Sleep(100 * time.Millisecond)

	pgid, err := syscall.Getpgid(pid)
	require.NoError(t, err)
	assert.Equal(t, pid, pgid, "process should be group leader")

	require.NoError(t, Kill(cmd, syscall.SIGKILL))

	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("process did not exit after SIGKILL")
	}

	status, ok := cmd.ProcessState.Sys().(syscall.WaitStatus)
	require.True(t, ok)
	assert.True(t, status.Signaled())

	// Orphaned members may linger as zombies when nothing reaps them.
	require.Eventually(t, func() bool { return liveMembers(pgid) == 0 },
		2*time.Second, 20*time.Millisecond, "group members still running")
}

// liveMembers counts processes in group pgid that are not zombies, or -1
// when /proc cannot be read.
func liveMembers(pgid int) int {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return -1
	}

	live := 0
	for _, e := range entries {
		if _, err := strconv.Atoi(e.Name()); err != nil {
			continue
		}
		stat, err := os.ReadFile(filepath.Join("/proc", e.Name(), "stat"))
		if err != nil {
			continue
		}
		// pid (comm) state ppid pgrp ...
		i := bytes.LastIndexByte(stat, ')')
		if i < 0 {
			continue
		}
		fields := strings.Fields(string(stat[i+1:]))
		if len(fields) < 3 {
			continue
		}
		if fields[2] == strconv.Itoa(pgid) && fields[0] != "Z" && fields[0] != "X" {
			live++
		}
	}
	return live
}

func TestKill_NilAndExited(t *testing.T) {
	assert.NoError(t, Kill(nil, syscall.SIGTERM))
	assert.NoError(t, Kill(&exec.Cmd{}, syscall.SIGTERM))

	cmd, exited := startGroup(t, "exit 0")
	<-exited
	assert.ErrorIs(t, Kill(cmd, syscall.SIGTERM), os.ErrProcessDone)
}

func TestTerminate_GracefulOnSIGTERM(t *testing.T) {
	cmd, exited := startGroup(t, "sleep 10")

	forced, err := Terminate(cmd, exited, 2*time.Second, time.Second)
	require.NoError(t, err)
	assert.False(t, forced)
}

func TestTerminate_EscalatesToSIGKILL(t *testing.T) {
	cmd, exited := startGroup(t, "trap '' TERM; while true; do sleep 1; done")
	time.Sleep(100 * time.Millisecond)

	grace := 200 * time.Millisecond
	start := time.Now()
	forced, err := Terminate(cmd, exited, grace, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, forced)
	assert.GreaterOrEqual(t, time.Since(start), grace)
}
