// Package translog keeps the append-only transfer log channels consumed by
// the log viewer: one text file per channel, one "<timestamp>: <message>"
// line per event.
package translog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
)

// TimestampLayout formats the timestamp that prefixes every line.
const TimestampLayout = "2006-01-02 15:04:05"

// ErrUnknownChannel is returned for a channel this logger does not own.
var ErrUnknownChannel = errors.New("unknown log channel")

// Channel names one log stream.
type Channel string

const (
	ChannelTransfer      Channel = "transfer"
	ChannelTransferError Channel = "transfer_errors"
	ChannelChecksum      Channel = "checksum"
)

// Channels lists every channel in the order the log viewer shows them.
var Channels = []Channel{ChannelTransfer, ChannelTransferError, ChannelChecksum}

// FileName is the name of the channel's backing file.
func (c Channel) FileName() string {
	return string(c) + ".log"
}

// Logger owns the channel files under one directory. Appends to the same
// channel are serialised so lines never interleave, even on storage without
// atomic append.
type Logger struct {
	dir string
	now func() time.Time
	mu  map[Channel]*sync.Mutex
}

// New creates a Logger writing under dir. The directory is created lazily on
// first append.
func New(dir string) *Logger {
	l := &Logger{
		dir: dir,
		now: time.Now,
		mu:  make(map[Channel]*sync.Mutex, len(Channels)),
	}
	for _, ch := range Channels {
		l.mu[ch] = &sync.Mutex{}
	}
	return l
}

// Dir returns the directory holding the channel files.
func (l *Logger) Dir() string {
	return l.dir
}

// Path returns the backing file of a channel.
func (l *Logger) Path(ch Channel) string {
	return filepath.Join(l.dir, ch.FileName())
}

func (l *Logger) lock(ch Channel) (*sync.Mutex, error) {
	mu, ok := l.mu[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
	mu.Lock()
	return mu, nil
}

// Append writes one timestamped line to the channel. Each call opens,
// writes and closes the file.
func (l *Logger) Append(ch Channel, message string) error {
	mu, err := l.lock(ch)
	if err != nil {
		return err
	}
	defer mu.Unlock()

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(l.Path(ch), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", ch.FileName(), err)
	}
	line := fmt.Sprintf("%s: %s\n", l.now().Format(TimestampLayout), message)
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("append %s: %w", ch.FileName(), err)
	}
	return f.Close()
}

// ReadAll returns every line of the channel in write order. A channel that
// was never written reads as empty.
func (l *Logger) ReadAll(ch Channel) ([]string, error) {
	mu, err := l.lock(ch)
	if err != nil {
		return nil, err
	}
	defer mu.Unlock()

	f, err := os.Open(l.Path(ch))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ch.FileName(), err)
	}
	defer f.Close()

	// Lines have no length limit: error messages can be arbitrarily long.
	lines := []string{}
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			lines = append(lines, strings.TrimRight(line, "\r\n"))
		}
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", ch.FileName(), err)
		}
	}
}

// Clear empties the channel by removing its file. Clearing an empty channel
// is a no-op.
func (l *Logger) Clear(ch Channel) error {
	mu, err := l.lock(ch)
	if err != nil {
		return err
	}
	defer mu.Unlock()

	if err := os.Remove(l.Path(ch)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear %s: %w", ch.FileName(), err)
	}
	return nil
}

// ClearAll clears every channel, carrying on past failures. The returned
// error lists the channels that could not be cleared.
func (l *Logger) ClearAll() error {
	var result *multierror.Error
	for _, ch := range Channels {
		if err := l.Clear(ch); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// LogTransfer records a successful file transfer.
func (l *Logger) LogTransfer(fileName string) error {
	return l.Append(ChannelTransfer, fmt.Sprintf("Successfully transferred file %s", fileName))
}

// LogTransferError records a failed file transfer.
func (l *Logger) LogTransferError(fileName, errorMessage string) error {
	return l.Append(ChannelTransferError, fmt.Sprintf("Error transferring file %s: %s", fileName, errorMessage))
}

// LogChecksum records the result of an integrity check.
func (l *Logger) LogChecksum(fileName string, passed bool) error {
	result := "failed"
	if passed {
		result = "passed"
	}
	return l.Append(ChannelChecksum, fmt.Sprintf("Integrity check of file %s %s", fileName, result))
}
