package translog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	l := New(filepath.Join(t.TempDir(), "logs"))
	l.now = func() time.Time { return time.Date(2024, 3, 5, 14, 7, 9, 0, time.Local) }
	return l
}

func TestAppendReadAllRoundTrip(t *testing.T) {
	l := newTestLogger(t)

	require.NoError(t, l.Append(ChannelTransfer, "first"))
	require.NoError(t, l.Append(ChannelTransfer, "second"))

	lines, err := l.ReadAll(ChannelTransfer)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"2024-03-05 14:07:09: first",
		"2024-03-05 14:07:09: second",
	}, lines)
}

func TestAppendCreatesDirectory(t *testing.T) {
	l := newTestLogger(t)
	_, err := os.Stat(l.Dir())
	require.True(t, os.IsNotExist(err))

	require.NoError(t, l.LogChecksum("a.txt", true))

	data, err := os.ReadFile(filepath.Join(l.Dir(), "checksum.log"))
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05 14:07:09: Integrity check of file a.txt passed\n", string(data))
}

func TestReadAllNeverWritten(t *testing.T) {
	l := newTestLogger(t)

	lines, err := l.ReadAll(ChannelTransferError)
	require.NoError(t, err)
	assert.NotNil(t, lines)
	assert.Empty(t, lines)
}

func TestClearIsIdempotent(t *testing.T) {
	l := newTestLogger(t)

	require.NoError(t, l.Clear(ChannelTransfer))
	require.NoError(t, l.LogTransfer("a.txt"))
	require.NoError(t, l.Clear(ChannelTransfer))
	require.NoError(t, l.Clear(ChannelTransfer))

	lines, err := l.ReadAll(ChannelTransfer)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestClearAllOnlyTouchesChannels(t *testing.T) {
	l := newTestLogger(t)
	require.NoError(t, l.LogTransfer("a.txt"))
	require.NoError(t, l.LogTransferError("b.txt", "permission denied"))
	require.NoError(t, l.LogChecksum("a.txt", false))

	other := filepath.Join(l.Dir(), "service.log")
	require.NoError(t, os.WriteFile(other, []byte("keep"), 0o644))

	require.NoError(t, l.ClearAll())

	for _, ch := range Channels {
		lines, err := l.ReadAll(ch)
		require.NoError(t, err)
		assert.Empty(t, lines, ch)
	}
	_, err := os.Stat(other)
	assert.NoError(t, err)
}

func TestClearAllContinuesPastFailures(t *testing.T) {
	l := newTestLogger(t)
	require.NoError(t, l.LogTransfer("a.txt"))
	require.NoError(t, l.LogChecksum("a.txt", true))

	// A non-empty directory in place of a channel file cannot be removed.
	blocked := l.Path(ChannelTransferError)
	require.NoError(t, os.MkdirAll(filepath.Join(blocked, "inner"), 0o755))

	err := l.ClearAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transfer_errors.log")

	lines, err := l.ReadAll(ChannelChecksum)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestUnknownChannel(t *testing.T) {
	l := newTestLogger(t)

	assert.ErrorIs(t, l.Append(Channel("audit"), "x"), ErrUnknownChannel)
	_, err := l.ReadAll(Channel("audit"))
	assert.ErrorIs(t, err, ErrUnknownChannel)
	assert.ErrorIs(t, l.Clear(Channel("audit")), ErrUnknownChannel)
}

func TestMessageFormats(t *testing.T) {
	l := newTestLogger(t)
	require.NoError(t, l.LogTransfer("a.txt"))
	require.NoError(t, l.LogTransferError("b.txt", "disk full"))
	require.NoError(t, l.LogChecksum("c.txt", false))

	transfer, _ := l.ReadAll(ChannelTransfer)
	errs, _ := l.ReadAll(ChannelTransferError)
	sums, _ := l.ReadAll(ChannelChecksum)

	assert.Equal(t, "2024-03-05 14:07:09: Successfully transferred file a.txt", transfer[0])
	assert.Equal(t, "2024-03-05 14:07:09: Error transferring file b.txt: disk full", errs[0])
	assert.Equal(t, "2024-03-05 14:07:09: Integrity check of file c.txt failed", sums[0])
}

func TestConcurrentAppendsKeepLinesIntact(t *testing.T) {
	l := newTestLogger(t)
	payload := strings.Repeat("x", 4096)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = l.Append(ChannelTransfer, fmt.Sprintf("%02d-%02d %s", i, j, payload))
			}
		}(i)
	}
	wg.Wait()

	lines, err := l.ReadAll(ChannelTransfer)
	require.NoError(t, err)
	require.Len(t, lines, 200)
	for _, line := range lines {
		assert.True(t, strings.HasSuffix(line, payload), "torn line: %.40q", line)
	}
}

func TestReadAllLongLine(t *testing.T) {
	l := newTestLogger(t)
	long := strings.Repeat("x", 3*1024*1024)

	require.NoError(t, l.LogTransferError("big.bin", long))
	require.NoError(t, l.LogTransfer("next.txt"))

	lines, err := l.ReadAll(ChannelTransferError)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.True(t, strings.HasSuffix(lines[0], long))

	lines, err = l.ReadAll(ChannelTransfer)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-05 14:07:09: Successfully transferred file next.txt"}, lines)
}
