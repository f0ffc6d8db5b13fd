package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

// FTPConfig addresses an FTP server.
type FTPConfig struct {
	// Host is "host" or "host:port"; port 21 is assumed.
	Host     string
	User     string
	Password string
	// Path is the remote directory (default "reports").
	Path    string
	Timeout time.Duration
}

// ftpConn is the subset of *ftp.ServerConn used here.
type ftpConn interface {
	Login(user, password string) error
	MakeDir(path string) error
	Stor(path string, r io.Reader) error
	Quit() error
}

type ftpDialer func(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error)

func dialFTP(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error) {
	return ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(timeout))
}

// FTP stores the summary and every report under the remote path.
type FTP struct {
	cfg  FTPConfig
	dial ftpDialer
}

// NewFTP validates cfg and returns a publisher.
func NewFTP(cfg FTPConfig) (*FTP, error) {
	if cfg.Host == "" {
		return nil, errors.New("ftp publisher: host is not set")
	}
	if _, _, err := net.SplitHostPort(cfg.Host); err != nil {
		cfg.Host = net.JoinHostPort(cfg.Host, "21")
	}
	if cfg.User == "" {
		cfg.User = "anonymous"
	}
	cfg.Path = strings.TrimRight(cfg.Path, "/")
	if cfg.Path == "" {
		cfg.Path = "reports"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &FTP{cfg: cfg, dial: dialFTP}, nil
}

func (f *FTP) Name() string { return "ftp" }

// Publish logs in, creates the remote directories it needs and uploads.
func (f *FTP) Publish(ctx context.Context, s Summary, outputRoot string) (err error) {
	conn, err := f.dial(ctx, f.cfg.Host, f.cfg.Timeout)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", f.cfg.Host, err)
	}
	defer func() {
		if qerr := conn.Quit(); qerr != nil && err == nil {
			err = fmt.Errorf("closing ftp session: %w", qerr)
		}
	}()
	if err := conn.Login(f.cfg.User, f.cfg.Password); err != nil {
		return fmt.Errorf("ftp login as %s: %w", f.cfg.User, err)
	}

	made := map[string]bool{}
	ensureDir := func(dir string) {
		// MakeDir fails for existing directories; that is not an error here.
		var parts []string
		for _, seg := range strings.Split(dir, "/") {
			parts = append(parts, seg)
			d := strings.Join(parts, "/")
			if d == "" || made[d] {
				continue
			}
			_ = conn.MakeDir(d)
			made[d] = true
		}
	}

	data, err := s.JSON()
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	ensureDir(f.cfg.Path)
	if err := conn.Stor(path.Join(f.cfg.Path, SummaryFile), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("storing %s: %w", SummaryFile, err)
	}

	var errs []error
	for _, r := range s.Reports {
		content, err := os.ReadFile(filepath.Join(outputRoot, filepath.FromSlash(r.File)))
		if err != nil {
			errs = append(errs, fmt.Errorf("reading %s: %w", r.File, err))
			continue
		}
		remote := path.Join(f.cfg.Path, r.File)
		ensureDir(path.Dir(remote))
		if err := conn.Stor(remote, bytes.NewReader(content)); err != nil {
			errs = append(errs, fmt.Errorf("storing %s: %w", r.File, err))
		}
	}
	return errors.Join(errs...)
}
