// Package ftp pushes single files to an FTP server. Every call owns one
// connection, opened and closed within the call.
package ftp

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	goftp "github.com/jlaffaye/ftp"
)

// DefaultTimeout bounds dialing and each FTP command.
const DefaultTimeout = 30 * time.Second

// Config holds connection settings shared by every upload.
type Config struct {
	User     string
	Password string

	// TLS enables explicit FTPS (AUTH TLS).
	TLS bool
	// InsecureSkipVerify accepts any server certificate. Known hardening gap,
	// only for servers with self-signed certificates.
	InsecureSkipVerify bool

	Timeout time.Duration
}

// DefaultConfig logs in anonymously over plain FTP.
func DefaultConfig() Config {
	return Config{
		User:     "anonymous",
		Password: "anonymous",
		Timeout:  DefaultTimeout,
	}
}

// Uploader stores files on FTP servers.
type Uploader struct {
	cfg Config
	log *slog.Logger
}

// NewUploader creates an Uploader.
func NewUploader(cfg Config, log *slog.Logger) *Uploader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Uploader{cfg: cfg, log: log}
}

func address(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func (u *Uploader) dialOptions(ctx context.Context, host string) []goftp.DialOption {
	opts := []goftp.DialOption{
		goftp.DialWithContext(ctx),
		goftp.DialWithTimeout(u.cfg.Timeout),
	}
	if u.cfg.TLS {
		opts = append(opts, goftp.DialWithExplicitTLS(&tls.Config{
			ServerName:         host,
			InsecureSkipVerify: u.cfg.InsecureSkipVerify,
		}))
	}
	return opts
}

// connect dials and logs in. The caller must quit the returned connection.
func (u *Uploader) connect(ctx context.Context, host string, port int) (*goftp.ServerConn, error) {
	addr := address(host, port)

	conn, err := goftp.Dial(addr, u.dialOptions(ctx, host)...)
	if err != nil {
		return nil, classify("dial", addr, err)
	}
	if err := conn.Login(u.cfg.User, u.cfg.Password); err != nil {
		_ = conn.Quit()
		return nil, classify("login", addr, err)
	}
	return conn, nil
}

func (u *Uploader) quit(conn *goftp.ServerConn, addr string) {
	if err := conn.Quit(); err != nil {
		u.log.Debug("ftp quit failed", "addr", addr, "error", err)
	}
}

// Upload stores the local file at the server root as /remoteName.
func (u *Uploader) Upload(ctx context.Context, host string, port int, localPath, remoteName string) error {
	addr := address(host, port)

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open staged file: %w", err)
	}
	defer f.Close()

	conn, err := u.connect(ctx, host, port)
	if err != nil {
		return err
	}
	defer u.quit(conn, addr)

	if err := conn.Stor(remotePath(remoteName), f); err != nil {
		return classify("stor", addr, err)
	}

	u.log.Info("uploaded file to ftp", "addr", addr, "file", remoteName)
	return nil
}

// CheckConnectivity connects, logs in and disconnects.
func (u *Uploader) CheckConnectivity(ctx context.Context, host string, port int) error {
	conn, err := u.connect(ctx, host, port)
	if err != nil {
		return err
	}
	u.quit(conn, address(host, port))
	return nil
}

// Retrieve opens the remote file at the server root for reading. Closing the
// reader also closes the connection.
func (u *Uploader) Retrieve(ctx context.Context, host string, port int, remoteName string) (io.ReadCloser, error) {
	addr := address(host, port)

	conn, err := u.connect(ctx, host, port)
	if err != nil {
		return nil, err
	}

	resp, err := conn.Retr(remotePath(remoteName))
	if err != nil {
		u.quit(conn, addr)
		return nil, classify("retr", addr, err)
	}
	return &retrReader{resp: resp, conn: conn, addr: addr, u: u}, nil
}

func remotePath(name string) string {
	return "/" + path.Base("/"+name)
}

type retrReader struct {
	resp *goftp.Response
	conn *goftp.ServerConn
	addr string
	u    *Uploader
}

func (r *retrReader) Read(p []byte) (int, error) {
	n, err := r.resp.Read(p)
	if err != nil && err != io.EOF {
		return n, classify("retr", r.addr, err)
	}
	return n, err
}

// Close ends the transfer before quitting; the connection cannot take the
// QUIT command while the data transfer is still open.
func (r *retrReader) Close() error {
	err := r.resp.Close()
	r.u.quit(r.conn, r.addr)
	return classify("retr", r.addr, err)
}
