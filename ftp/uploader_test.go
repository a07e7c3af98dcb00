package ftp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUploader() *Uploader {
	cfg := DefaultConfig()
	cfg.Timeout = 2 * time.Second
	return NewUploader(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// closedPort returns a local port with nothing listening on it.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

// fakeServer is a minimal FTP server for tests: passive mode only, files
// kept in memory at the root. With rejectLogin set it refuses every login.
type fakeServer struct {
	rejectLogin bool

	mu       sync.Mutex
	files    map[string][]byte
	commands []string
}

func newFakeServer(t *testing.T, rejectLogin bool) (*fakeServer, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	s := &fakeServer{rejectLogin: rejectLogin, files: make(map[string][]byte)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.session(conn)
		}
	}()
	return s, ln.Addr().(*net.TCPAddr).Port
}

// rejectingServer greets like an FTP server and refuses every login.
func rejectingServer(t *testing.T) int {
	_, port := newFakeServer(t, true)
	return port
}

func (s *fakeServer) file(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[name]
	return data, ok
}

func (s *fakeServer) put(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = data
}

func (s *fakeServer) history() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *fakeServer) session(conn net.Conn) {
	defer conn.Close()
	reply := func(format string, args ...any) {
		fmt.Fprintf(conn, format+"\r\n", args...)
	}

	var data net.Listener
	defer func() {
		if data != nil {
			data.Close()
		}
	}()
	// openData accepts the connection the client dialed after EPSV.
	openData := func() (net.Conn, bool) {
		if data == nil {
			reply("425 Use EPSV first")
			return nil, false
		}
		defer func() { data.Close(); data = nil }()
		reply("150 Opening data connection")
		dc, err := data.Accept()
		if err != nil {
			reply("425 Cannot open data connection")
			return nil, false
		}
		return dc, true
	}

	reply("220 fake ready")
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
		cmd = strings.ToUpper(cmd)
		s.mu.Lock()
		s.commands = append(s.commands, cmd)
		s.mu.Unlock()

		switch cmd {
		case "USER", "PASS":
			switch {
			case s.rejectLogin:
				reply("530 Login incorrect")
			case cmd == "USER":
				reply("331 Password required")
			default:
				reply("230 Logged in")
			}
		case "TYPE":
			reply("200 Type set")
		case "EPSV":
			if data != nil {
				data.Close()
			}
			data, err = net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				reply("425 Cannot open data connection")
				continue
			}
			reply("229 Entering Extended Passive Mode (|||%d|)", data.Addr().(*net.TCPAddr).Port)
		case "STOR":
			dc, ok := openData()
			if !ok {
				continue
			}
			content, err := io.ReadAll(dc)
			dc.Close()
			if err != nil {
				reply("426 Transfer aborted")
				continue
			}
			s.put(arg, content)
			reply("226 Transfer complete")
		case "RETR":
			content, ok := s.file(arg)
			if !ok {
				reply("550 %s: No such file", arg)
				continue
			}
			dc, ok := openData()
			if !ok {
				continue
			}
			_, err := dc.Write(content)
			dc.Close()
			if err != nil {
				reply("426 Transfer aborted")
				continue
			}
			reply("226 Transfer complete")
		case "QUIT":
			reply("221 Bye")
			return
		default:
			reply("502 Command not implemented")
		}
	}
}

// quitEventually waits for the client's QUIT to reach the server.
func (s *fakeServer) quitEventually(t *testing.T) {
	t.Helper()
	assert.Eventually(t, func() bool {
		h := s.history()
		return len(h) > 0 && h[len(h)-1] == "QUIT"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCheckConnectivity_NothingListening(t *testing.T) {
	err := testUploader().CheckConnectivity(context.Background(), "127.0.0.1", closedPort(t))
	require.Error(t, err)

	var netErr *NetworkError
	assert.True(t, errors.As(err, &netErr), "expected NetworkError, got %T: %v", err, err)
	var protoErr *ProtocolError
	assert.False(t, errors.As(err, &protoErr))
	assert.True(t, IsNetworkError(err))
}

func TestCheckConnectivity_LoginRejected(t *testing.T) {
	err := testUploader().CheckConnectivity(context.Background(), "127.0.0.1", rejectingServer(t))
	require.Error(t, err)

	var protoErr *ProtocolError
	assert.True(t, errors.As(err, &protoErr), "expected ProtocolError, got %T: %v", err, err)
	assert.False(t, IsNetworkError(err))
}

func TestUpload_NothingListening(t *testing.T) {
	local := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(local, []byte("payload"), 0o644))

	err := testUploader().Upload(context.Background(), "127.0.0.1", closedPort(t), local, "a.txt")
	assert.True(t, IsNetworkError(err), "expected NetworkError, got %v", err)
}

func TestUpload_MissingLocalFile(t *testing.T) {
	err := testUploader().Upload(context.Background(), "127.0.0.1", closedPort(t), "/does/not/exist", "a.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.False(t, IsNetworkError(err))
}

func TestClassify(t *testing.T) {
	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

	tests := []struct {
		name        string
		err         error
		wantNetwork bool
	}{
		{"op error", opErr, true},
		{"wrapped op error", fmt.Errorf("dialing: %w", opErr), true},
		{"plain wrapped error", fmt.Errorf("read: %w", errors.New("x")), false},
		{"server reply", errors.New("550 Permission denied"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("stor", "host:21", tt.err)
			assert.Equal(t, tt.wantNetwork, IsNetworkError(got))
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.NoError(t, classify("stor", "host:21", nil))

	already := &ProtocolError{Op: "login", Addr: "host:21", Err: errors.New("530")}
	assert.Same(t, already, classify("stor", "host:21", already))
}

func TestRemotePath(t *testing.T) {
	assert.Equal(t, "/a.txt", remotePath("a.txt"))
	assert.Equal(t, "/a.txt", remotePath("../dir/a.txt"))
}

func TestUpload_StoresAtServerRoot(t *testing.T) {
	srv, port := newFakeServer(t, false)
	local := filepath.Join(t.TempDir(), "staged-report.txt")
	require.NoError(t, os.WriteFile(local, []byte("payload"), 0o644))

	err := testUploader().Upload(context.Background(), "127.0.0.1", port, local, "dir/report.txt")
	require.NoError(t, err)

	got, ok := srv.file("/report.txt")
	require.True(t, ok, "expected /report.txt on the server, have %v", srv.history())
	assert.Equal(t, "payload", string(got))
	srv.quitEventually(t)
	assert.Subset(t, srv.history(), []string{"USER", "PASS", "TYPE", "EPSV", "STOR"})
}

func TestRetrieve_ReadsBackAndCloses(t *testing.T) {
	srv, port := newFakeServer(t, false)
	srv.put("/a.txt", []byte("stored content"))

	rc, err := testUploader().Retrieve(context.Background(), "127.0.0.1", port, "a.txt")
	require.NoError(t, err)

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "stored content", string(data))

	require.NoError(t, rc.Close())
	srv.quitEventually(t)
}

func TestRetrieve_MissingFile(t *testing.T) {
	srv, port := newFakeServer(t, false)

	_, err := testUploader().Retrieve(context.Background(), "127.0.0.1", port, "missing.txt")
	require.Error(t, err)

	var protoErr *ProtocolError
	assert.True(t, errors.As(err, &protoErr), "expected ProtocolError, got %T: %v", err, err)
	srv.quitEventually(t)
}

func TestUploadThenRetrieve(t *testing.T) {
	srv, port := newFakeServer(t, false)
	u := testUploader()
	local := filepath.Join(t.TempDir(), "b.bin")
	content := []byte(strings.Repeat("0123456789", 5000))
	require.NoError(t, os.WriteFile(local, content, 0o644))

	require.NoError(t, u.Upload(context.Background(), "127.0.0.1", port, local, "b.bin"))

	rc, err := u.Retrieve(context.Background(), "127.0.0.1", port, "b.bin")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	stored, _ := srv.file("/b.bin")
	assert.Len(t, stored, len(content))
}
