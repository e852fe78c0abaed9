// SSH shim: a single entry point for every SSH invocation, including those
// made by the annex, so exactly one authentication and socket-lifetime
// policy exists. Shim's Run, RunStream and Test are the only places that
// spawn ssh; everything else calls through them.
package transfer

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/datalad-core/datalad/internal/config"
	"github.com/datalad-core/datalad/internal/errs"
)

// SSHTarget is a parsed `ssh://[user[:pw]@]host[:port]/path` URL.
type SSHTarget struct {
	User     string
	Password string
	Host     string
	Port     string
	Path     string
}

// ParseSSHURL decodes an ssh:// URL into its components.
func ParseSSHURL(raw string) (SSHTarget, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return SSHTarget{}, errs.Wrap(errs.InvalidArgument, err, "parse ssh url %q", raw)
	}
	if u.Scheme != "ssh" {
		return SSHTarget{}, errs.New(errs.InvalidArgument, "not an ssh url: %q", raw)
	}
	t := SSHTarget{Host: u.Hostname(), Port: u.Port(), Path: u.Path}
	if u.User != nil {
		t.User = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			t.Password = pw
		}
	}
	if t.Port == "" {
		t.Port = "22"
	}
	return t, nil
}

// Shim is the single-point SSH dispatcher.
type Shim struct {
	Config *config.Store

	mu       sync.Mutex
	sockLock map[string]*sync.Mutex // serializes control-socket creation per host
}

// NewShim constructs a Shim bound to cfg.
func NewShim(cfg *config.Store) *Shim {
	return &Shim{Config: cfg, sockLock: make(map[string]*sync.Mutex)}
}

// Executable resolves datalad.ssh.executable, defaulting to "ssh" on POSIX
// or the bundled OpenSSH under %WINDIR%\System32\OpenSSH\ssh.exe on
// Windows when present.
func (s *Shim) Executable() string {
	if exe, ok := s.Config.Get("datalad.ssh.executable"); ok && exe != "" {
		return exe
	}
	if runtime.GOOS == "windows" {
		candidate := filepath.Join(os.Getenv("WINDIR"), `System32\OpenSSH\ssh.exe`)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return "ssh"
}

// multiplexingEnabled implements datalad.ssh.multiplex-connections,
// defaulting on for platforms with socket support (not Windows).
func (s *Shim) multiplexingEnabled() bool {
	if v, err := s.Config.GetBool("datalad.ssh.multiplex-connections", runtime.GOOS != "windows"); err == nil {
		return v
	}
	return runtime.GOOS != "windows"
}

// controlSocketPath returns the ControlMaster socket path under
// datalad.locations.sockets for a given host/port/user.
func (s *Shim) controlSocketPath(socketDir string, t SSHTarget) string {
	key := fmt.Sprintf("%s@%s:%s", t.User, t.Host, t.Port)
	return filepath.Join(socketDir, "cm-"+sanitizeSocketKey(key))
}

func sanitizeSocketKey(k string) string {
	var b strings.Builder
	for _, r := range k {
		if r == '@' || r == ':' || r == '.' {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Args builds the argv for one SSH invocation (used both directly and by
// the annex, which is configured to call back through this shim via
// GIT_SSH/core.sshCommand-equivalent wiring done by the caller).
func (s *Shim) Args(socketDir string, t SSHTarget, remoteCmd []string) []string {
	args := []string{"-p", t.Port}
	if s.multiplexingEnabled() {
		sock := s.controlSocketPath(socketDir, t)
		args = append(args, "-o", "ControlMaster=auto", "-o", "ControlPersist=600", "-o", "ControlPath="+sock)
	}
	// Falls back to keyboard-interactive even when multiplexing is off.
	args = append(args, "-o", "PreferredAuthentications=publickey,keyboard-interactive,password")
	userHost := t.Host
	if t.User != "" {
		userHost = t.User + "@" + t.Host
	}
	args = append(args, userHost)
	args = append(args, remoteCmd...)
	return args
}

// lockSocketCreation serializes ControlMaster socket creation per host to
// avoid a check-then-create race between concurrent callers.
func (s *Shim) lockSocketCreation(key string) func() {
	s.mu.Lock()
	l, ok := s.sockLock[key]
	if !ok {
		l = &sync.Mutex{}
		s.sockLock[key] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Run executes one SSH command through the shim.
func (s *Shim) Run(ctx context.Context, socketDir string, t SSHTarget, remoteCmd []string) (stdout, stderr string, err error) {
	unlock := s.lockSocketCreation(t.Host + ":" + t.Port)
	defer unlock()

	cmd := exec.CommandContext(ctx, s.Executable(), s.Args(socketDir, t, remoteCmd)...)
	outBuf, errBuf := &strings.Builder{}, &strings.Builder{}
	cmd.Stdout, cmd.Stderr = outBuf, errBuf
	if runErr := cmd.Run(); runErr != nil {
		if _, ok := runErr.(*exec.ExitError); !ok {
			return "", "", errs.Wrap(errs.MissingExternalDependency, runErr, "start ssh executable %s", s.Executable())
		}
		return outBuf.String(), errBuf.String(), errs.Wrap(errs.RemoteNotAvailable, runErr, "ssh %s: %s", t.Host, strings.TrimSpace(errBuf.String()))
	}
	return outBuf.String(), errBuf.String(), nil
}

// RunStream executes one SSH command through the shim with its stdin/stdout
// wired directly to the given streams, for binary transfers (RIA object
// fetch/upload over ria+ssh) that Run's string-buffered capture would
// otherwise copy twice over.
func (s *Shim) RunStream(ctx context.Context, socketDir string, t SSHTarget, remoteCmd []string, stdout io.Writer, stdin io.Reader) error {
	unlock := s.lockSocketCreation(t.Host + ":" + t.Port)
	defer unlock()

	cmd := exec.CommandContext(ctx, s.Executable(), s.Args(socketDir, t, remoteCmd)...)
	cmd.Stdout = stdout
	cmd.Stdin = stdin
	var errBuf strings.Builder
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		return errs.Wrap(errs.RemoteNotAvailable, err, "ssh %s: %s", t.Host, strings.TrimSpace(errBuf.String()))
	}
	return nil
}

// Test runs remoteCmd through the shim and reports whether it exited zero,
// distinguishing a clean non-zero exit (e.g. `test -e` on a missing path)
// from a real connectivity failure.
func (s *Shim) Test(ctx context.Context, socketDir string, t SSHTarget, remoteCmd []string) (bool, error) {
	unlock := s.lockSocketCreation(t.Host + ":" + t.Port)
	defer unlock()

	cmd := exec.CommandContext(ctx, s.Executable(), s.Args(socketDir, t, remoteCmd)...)
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	if _, ok := err.(*exec.ExitError); ok {
		return false, nil
	}
	return false, errs.Wrap(errs.RemoteNotAvailable, err, "ssh %s", t.Host)
}

// HostKeyCallbackInsecureTOFU returns a golang.org/x/crypto/ssh host key
// callback that accepts every host key without checking or recording it
// (ssh.InsecureIgnoreHostKey). The ORA ria+ssh path does not use it; it
// goes through the shim's external ssh binary.
func HostKeyCallbackInsecureTOFU() ssh.HostKeyCallback {
	return ssh.InsecureIgnoreHostKey()
}

// portAsInt is a small helper for callers that need the numeric port.
func portAsInt(port string) int {
	n, err := strconv.Atoi(port)
	if err != nil {
		return 22
	}
	return n
}
