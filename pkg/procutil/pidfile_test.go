package procutil

import (
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPidFilePathAndSocketPathConvention(t *testing.T) {
	require.Equal(t, "/tmp/qtrader/qtrader_acct-1.pid", PidFilePath("/tmp/qtrader", "acct-1"))
	require.Equal(t, "/tmp/qtrader/qtrader_acct-1.sock", SocketPath("/tmp/qtrader", "acct-1"))
}

func TestIsProcessAliveForSelf(t *testing.T) {
	require.True(t, IsProcessAlive(os.Getpid()))
}

func TestIsProcessAliveForBogusPID(t *testing.T) {
	require.False(t, IsProcessAlive(999999999))
}

func TestAcquireOrReapSucceedsWhenNoFile(t *testing.T) {
	path := t.TempDir() + "/qtrader_acct.pid"
	require.NoError(t, AcquireOrReap(path))
}

func TestAcquireOrReapReapsStaleFile(t *testing.T) {
	path := t.TempDir() + "/qtrader_acct.pid"
	require.NoError(t, os.WriteFile(path, []byte("999999999"), 0o644))
	require.NoError(t, AcquireOrReap(path))
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestAcquireOrReapRefusesLiveOwner(t *testing.T) {
	path := t.TempDir() + "/qtrader_acct.pid"
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644))
	err := AcquireOrReap(path)
	require.Error(t, err)
}

func TestWriteAndReadPidFileRoundTrips(t *testing.T) {
	path := t.TempDir() + "/qtrader_acct.pid"
	require.NoError(t, WritePidFile(path))
	pid, err := ReadPidFile(path)
	require.NoError(t, err)
	require.Equal(t, os.Getpid(), pid)
}

func TestRemovePidFileIsIdempotent(t *testing.T) {
	path := t.TempDir() + "/qtrader_acct.pid"
	require.NoError(t, RemovePidFile(path))
	require.NoError(t, WritePidFile(path))
	require.NoError(t, RemovePidFile(path))
	require.NoError(t, RemovePidFile(path))
}

func TestStopProcessOnDeadPIDIsNoop(t *testing.T) {
	require.NoError(t, StopProcess(999999999, 100*time.Millisecond))
}
