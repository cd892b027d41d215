//go:build linux

package inference

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// processRunning reports whether pid exists and is not a zombie.
func processRunning(pid int) bool {
	stat, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}
	fields := strings.Fields(string(stat[strings.LastIndexByte(string(stat), ')')+1:]))
	return len(fields) > 0 && fields[0] != "Z"
}

func readPid(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	return pid
}

func TestRunTimeoutKillsChildProcesses(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	runner := newShellRunner(t, "sleep 30 &\necho $! > '"+pidFile+"'\nwait\n", 300*time.Millisecond)

	res, err := runner.Run(context.Background(), lipSyncJob(t))
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, res.Duration, killWaitDelay)

	pid := readPid(t, pidFile)
	assert.Eventually(t, func() bool { return !processRunning(pid) }, 2*time.Second, 20*time.Millisecond)
}

func TestRunSweepsLeftoverProcessesAfterExit(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	script := lipSyncScript + "sleep 30 >/dev/null 2>&1 &\necho $! > '" + pidFile + "'\n"
	runner := newShellRunner(t, script, 10*time.Second)

	_, err := runner.Run(context.Background(), lipSyncJob(t))
	require.NoError(t, err)

	pid := readPid(t, pidFile)
	assert.Eventually(t, func() bool { return !processRunning(pid) }, 2*time.Second, 20*time.Millisecond)
}
