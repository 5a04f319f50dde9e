// Package sftp pulls source files from a remote SFTP endpoint into the
// landing directory. Host keys are trusted on first use and persisted;
// per-file download failures never abort the batch.
package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	sftplib "github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/coastline/wharf/internal/config"
)

// Sentinel errors for the three ways a pull can go wrong before any
// file moves.
var (
	ErrAuth      = errors.New("sftp authentication failed")
	ErrKeyFormat = errors.New("unsupported private key format")
	ErrHost      = errors.New("host key verification failed")
)

// FileResult records the outcome for one remote file.
type FileResult struct {
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	Error   string `json:"error,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

// Result summarizes one Pull call.
type Result struct {
	Total   int          `json:"total"`
	OK      int          `json:"ok"`
	Failed  int          `json:"failed"`
	PerFile []FileResult `json:"per_file,omitempty"`
}

// Summary renders a one-line description for logs and the audit trail.
func (r *Result) Summary() string {
	if r.Total == 0 {
		return "no matching remote files"
	}
	return fmt.Sprintf("%d/%d files downloaded, %d failed", r.OK, r.Total, r.Failed)
}

// Puller downloads matching remote files into the landing directory.
type Puller struct {
	cfg        config.SFTP
	landing    string
	knownHosts string
	log        *slog.Logger
}

// New builds a puller. landing is the watched input directory that
// downloads land in. When cfg.KnownHostsPath is empty the known_hosts
// file is kept next to the landing directory.
func New(cfg config.SFTP, landing string, log *slog.Logger) *Puller {
	if log == nil {
		log = slog.Default()
	}
	kh := cfg.KnownHostsPath
	if kh == "" {
		kh = filepath.Join(landing, ".known_hosts")
	}
	return &Puller{cfg: cfg, landing: landing, knownHosts: kh, log: log}
}

// Pull lists the remote directory, downloads every file matching the
// configured patterns into the landing directory, and optionally
// deletes remote files after a successful download. Download errors
// are per-file; the returned error covers connection and listing
// failures only.
func (p *Puller) Pull(ctx context.Context) (*Result, error) {
	if err := os.MkdirAll(p.landing, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create landing directory: %w", err)
	}

	client, sc, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	defer sc.Close()

	entries, err := sc.ReadDir(p.cfg.RemoteDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote directory %s: %w", p.cfg.RemoteDirectory, err)
	}

	res := &Result{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if entry.IsDir() || !p.matches(entry.Name()) {
			continue
		}
		res.Total++
		fr := FileResult{Name: entry.Name(), Size: entry.Size()}

		if err := p.downloadOne(sc, entry); err != nil {
			p.log.Warn("sftp download failed", "file", entry.Name(), "error", err)
			fr.Error = err.Error()
			res.Failed++
			res.PerFile = append(res.PerFile, fr)
			continue
		}
		res.OK++
		p.log.Info("sftp download complete", "file", entry.Name(), "bytes", entry.Size())

		if p.cfg.DeleteAfterDownload {
			remote := path.Join(p.cfg.RemoteDirectory, entry.Name())
			if err := sc.Remove(remote); err != nil {
				p.log.Warn("failed to delete remote file after download", "file", entry.Name(), "error", err)
			} else {
				fr.Deleted = true
			}
		}
		res.PerFile = append(res.PerFile, fr)
	}
	return res, nil
}

// Check connects, lists the remote directory, and reports how many
// files currently match. Used by `wharf sftp check`.
func (p *Puller) Check(ctx context.Context) (int, error) {
	client, sc, err := p.connect(ctx)
	if err != nil {
		return 0, err
	}
	defer client.Close()
	defer sc.Close()

	entries, err := sc.ReadDir(p.cfg.RemoteDirectory)
	if err != nil {
		return 0, fmt.Errorf("failed to list remote directory %s: %w", p.cfg.RemoteDirectory, err)
	}
	n := 0
	for _, entry := range entries {
		if !entry.IsDir() && p.matches(entry.Name()) {
			n++
		}
	}
	return n, nil
}

// matches applies the configured globs to a remote file name. No
// patterns means every file matches.
func (p *Puller) matches(name string) bool {
	if len(p.cfg.FilePatterns) == 0 {
		return true
	}
	for _, pattern := range p.cfg.FilePatterns {
		if ok, err := filepath.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// downloadOne copies a remote file to a hidden .part file and renames
// it into place so the directory watcher never sees a partial file.
// The remote modification time is preserved.
func (p *Puller) downloadOne(sc *sftplib.Client, entry os.FileInfo) error {
	remote := path.Join(p.cfg.RemoteDirectory, entry.Name())
	src, err := sc.Open(remote)
	if err != nil {
		return fmt.Errorf("failed to open remote file: %w", err)
	}
	defer src.Close()

	tmp := filepath.Join(p.landing, "."+entry.Name()+".part")
	dst, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to download: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to flush local file: %w", err)
	}

	final := filepath.Join(p.landing, entry.Name())
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move download into place: %w", err)
	}
	if mt := entry.ModTime(); !mt.IsZero() {
		_ = os.Chtimes(final, time.Now(), mt)
	}
	return nil
}

// connect dials the endpoint with exponential backoff. Authentication
// and host key failures are permanent; network errors retry up to
// MaxRetries.
func (p *Puller) connect(ctx context.Context) (*ssh.Client, *sftplib.Client, error) {
	auth, err := p.authMethods()
	if err != nil {
		return nil, nil, err
	}
	hostKeys, err := p.hostKeyCallback()
	if err != nil {
		return nil, nil, err
	}
	conf := &ssh.ClientConfig{
		User:            p.cfg.Username,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         p.cfg.Timeout,
	}
	addr := net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))

	var client *ssh.Client
	dial := func() error {
		c, err := dialSSH(ctx, addr, conf)
		if err != nil {
			if classified := classifyDialError(err); classified != nil {
				return backoff.Permanent(classified)
			}
			p.log.Warn("sftp dial failed, will retry", "addr", addr, "error", err)
			return err
		}
		client = c
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(p.cfg.MaxRetries)), ctx)
	if err := backoff.Retry(dial, policy); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	sc, err := sftplib.NewClient(client)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to open sftp session: %w", err)
	}
	return client, sc, nil
}

func (p *Puller) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if p.cfg.KeyPath != "" {
		signer, err := LoadPrivateKey(p.cfg.KeyPath, p.cfg.KeyPassphrase, p.cfg.AllowPuttygen)
		if err != nil {
			return nil, err
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if p.cfg.Password != "" {
		methods = append(methods, ssh.Password(p.cfg.Password))
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("%w: no password or key configured", ErrAuth)
	}
	return methods, nil
}

// hostKeyCallback verifies against the persisted known_hosts file.
// Unknown hosts are trusted on first use and appended; a changed key
// for a known host is ErrHost.
func (p *Puller) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if err := os.MkdirAll(filepath.Dir(p.knownHosts), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create known_hosts directory: %w", err)
	}
	f, err := os.OpenFile(p.knownHosts, os.O_CREATE|os.O_RDONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open known_hosts: %w", err)
	}
	f.Close()

	verify, err := knownhosts.New(p.knownHosts)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := verify(hostname, remote, key)
		if err == nil {
			return nil
		}
		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) {
			if len(keyErr.Want) == 0 {
				if err := p.appendKnownHost(hostname, key); err != nil {
					return err
				}
				p.log.Info("trusted new host key", "host", hostname, "type", key.Type())
				return nil
			}
			return fmt.Errorf("%w: key for %s changed (expected entry in %s)", ErrHost, hostname, p.knownHosts)
		}
		return fmt.Errorf("%w: %v", ErrHost, err)
	}, nil
}

func (p *Puller) appendKnownHost(hostname string, key ssh.PublicKey) error {
	f, err := os.OpenFile(p.knownHosts, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("%w: cannot persist host key: %v", ErrHost, err)
	}
	defer f.Close()
	line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
	if _, err := fmt.Fprintln(f, line); err != nil {
		return fmt.Errorf("%w: cannot persist host key: %v", ErrHost, err)
	}
	return nil
}

func dialSSH(ctx context.Context, addr string, conf *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{Timeout: conf.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, conf)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}

// classifyDialError maps handshake failures onto the sentinel errors.
// Nil means the error is transient and worth retrying.
func classifyDialError(err error) error {
	if errors.Is(err, ErrHost) {
		return err
	}
	msg := err.Error()
	if strings.Contains(msg, "unable to authenticate") || strings.Contains(msg, "no supported methods remain") {
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}
	return nil
}
