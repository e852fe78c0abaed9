// ORA special remote / RIA object store source:
// uniform access over ria+file, ria+ssh, ria+http(s) URLs pointing at a
// store with layout <store>/<first-3-of-id>/<remaining>/<alias|dataset-id>/annex/objects/...
package transfer

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/datalad-core/datalad/internal/errs"
)

// RIAStoreVersion is the `ria-layout-version` file's expected content at
// the store root.
const RIAStoreVersion = "1"

// RIAURL is a parsed ria+file / ria+ssh / ria+http(s) URL.
type RIAURL struct {
	Transport string // "file", "ssh", "http", "https"
	Base      *url.URL
}

// ParseRIAURL decodes a ria+<transport>://... URL.
func ParseRIAURL(raw string) (RIAURL, error) {
	const prefix = "ria+"
	if !strings.HasPrefix(raw, prefix) {
		return RIAURL{}, errs.New(errs.InvalidArgument, "not a ria url: %q", raw)
	}
	inner := strings.TrimPrefix(raw, prefix)
	u, err := url.Parse(inner)
	if err != nil {
		return RIAURL{}, errs.Wrap(errs.InvalidArgument, err, "parse ria url %q", raw)
	}
	return RIAURL{Transport: u.Scheme, Base: u}, nil
}

// ObjectPath computes the RIA store's layout path for a dataset id and key:
// <store>/<first-3-of-id>/<remaining>/annex/objects/...
func ObjectPath(storeRoot, datasetID, key string) string {
	first3, rest := datasetID, ""
	if len(datasetID) > 3 {
		first3, rest = datasetID[:3], datasetID[3:]
	}
	hashDirs := annexHashDirs(key)
	return filepath.Join(storeRoot, first3, rest, "annex", "objects", hashDirs, key)
}

// annexHashDirs mimics the annex's own two-level lower-case hash directory
// scheme (the first 3 and next 3 hex digits of the key's MD5) so object
// layout matches the real annex object tree.
func annexHashDirs(key string) string {
	h := fmt.Sprintf("%x", md5.Sum([]byte(key)))
	return filepath.Join(h[0:3], h[3:6])
}

// RIAStore is an ORA-accessible store, uniform across transports: the same
// Available/Fetch/Upload entry points work whether Root is ria+file,
// ria+ssh, or ria+http(s), dispatching internally on Root.Transport
// (Upload refuses http(s) stores as read-only).
type RIAStore struct {
	Root    RIAURL
	PushURL *RIAURL // optional, separate push-url

	SSH       *Shim       // required for the ssh transport
	SocketDir string      // ssh ControlMaster socket directory
	HTTP      *HTTPSource // required for the http(s) transport
}

// CheckVersion reads the store's ria-layout-version file and refuses
// incompatible versions. Over http(s) it checks nothing and returns nil.
func (s *RIAStore) CheckVersion(ctx context.Context) error {
	switch s.Root.Transport {
	case "file":
		versionPath := filepath.Join(s.Root.Base.Path, "ria-layout-version")
		raw, err := os.ReadFile(versionPath)
		if err != nil {
			return errs.Wrap(errs.RemoteNotAvailable, err, "read ria-layout-version at %s", versionPath)
		}
		return s.checkVersionString(string(raw), versionPath)
	case "ssh":
		t, err := s.sshTarget()
		if err != nil {
			return err
		}
		versionPath := filepath.Join(t.Path, "ria-layout-version")
		var buf strings.Builder
		if err := s.SSH.RunStream(ctx, s.SocketDir, t, []string{"cat", versionPath}, &buf, nil); err != nil {
			return errs.Wrap(errs.RemoteNotAvailable, err, "read ria-layout-version at %s", versionPath)
		}
		return s.checkVersionString(buf.String(), versionPath)
	case "http", "https":
		// Not checked: neither this method nor Available/Fetch reads
		// ria-layout-version over http(s).
		return nil
	default:
		return errs.New(errs.InvalidArgument, "CheckVersion: unknown ria transport %q", s.Root.Transport)
	}
}

func (s *RIAStore) checkVersionString(raw, versionPath string) error {
	version := strings.TrimSpace(raw)
	if version != RIAStoreVersion {
		return errs.New(errs.Conflict, "incompatible ria store layout version %q (expected %q) at %s", version, RIAStoreVersion, versionPath)
	}
	return nil
}

// sshTarget parses Root.Base as an SSH endpoint; Root.Transport must be
// "ssh" and SSH must be configured.
func (s *RIAStore) sshTarget() (SSHTarget, error) {
	if s.SSH == nil {
		return SSHTarget{}, errs.New(errs.InvalidArgument, "ria+ssh store requires an SSH shim")
	}
	return ParseSSHURL(s.Root.Base.String())
}

// httpObjectURL builds the concrete HTTP(S) URL for a key's object under an
// http(s)-transport store.
func (s *RIAStore) httpObjectURL(datasetID, key string) string {
	return s.Root.Base.Scheme + "://" + s.Root.Base.Host + filepath.ToSlash(ObjectPath(s.Root.Base.Path, datasetID, key))
}

// Available checks presence of a key's object in the store, dispatching on
// transport: a filesystem stat, an `ssh test -e`, or an HTTP HEAD.
func (s *RIAStore) Available(ctx context.Context, datasetID, key string) (bool, error) {
	switch s.Root.Transport {
	case "file":
		p := ObjectPath(s.Root.Base.Path, datasetID, key)
		_, err := os.Stat(p)
		return err == nil, nil
	case "ssh":
		t, err := s.sshTarget()
		if err != nil {
			return false, err
		}
		remote := ObjectPath(t.Path, datasetID, key)
		return s.SSH.Test(ctx, s.SocketDir, t, []string{"test", "-e", remote})
	case "http", "https":
		if s.HTTP == nil {
			return false, errs.New(errs.InvalidArgument, "ria+%s store requires an HTTPSource", s.Root.Transport)
		}
		ok, _, err := s.HTTP.Head(ctx, s.httpObjectURL(datasetID, key))
		return ok, err
	default:
		return false, errs.New(errs.InvalidArgument, "Available: unknown ria transport %q", s.Root.Transport)
	}
}

// Fetch retrieves a key's object from the store, over whichever transport
// Root names. Resuming an interrupted upload's partial object on the STORE
// side (not the download side) is handled by Upload below, which detects
// and resumes partial objects left by an earlier interrupted upload.
func (s *RIAStore) Fetch(ctx context.Context, datasetID, key, destPath string) error {
	switch s.Root.Transport {
	case "file":
		src := ObjectPath(s.Root.Base.Path, datasetID, key)
		in, err := os.Open(src)
		if err != nil {
			return errs.Wrap(errs.Transfer, err, "open ria object %s", src)
		}
		defer in.Close()
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return errs.Wrap(errs.Permission, err, "create directory for %s", destPath)
		}
		out, err := os.Create(destPath)
		if err != nil {
			return errs.Wrap(errs.Permission, err, "create %s", destPath)
		}
		defer out.Close()
		_, err = io.Copy(out, in)
		return err
	case "ssh":
		t, err := s.sshTarget()
		if err != nil {
			return err
		}
		remote := ObjectPath(t.Path, datasetID, key)
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return errs.Wrap(errs.Permission, err, "create directory for %s", destPath)
		}
		out, err := os.Create(destPath)
		if err != nil {
			return errs.Wrap(errs.Permission, err, "create %s", destPath)
		}
		defer out.Close()
		if err := s.SSH.RunStream(ctx, s.SocketDir, t, []string{"cat", remote}, out, nil); err != nil {
			return errs.Wrap(errs.Transfer, err, "fetch ria object %s from %s", remote, t.Host)
		}
		return nil
	case "http", "https":
		if s.HTTP == nil {
			return errs.New(errs.InvalidArgument, "ria+%s store requires an HTTPSource", s.Root.Transport)
		}
		return s.HTTP.Fetch(ctx, s.httpObjectURL(datasetID, key), destPath, -1, func(Progress) {})
	default:
		return errs.New(errs.InvalidArgument, "Fetch: unknown ria transport %q", s.Root.Transport)
	}
}

// shellQuote single-quotes s for inclusion in a remote `sh -c` command,
// escaping any embedded single quote.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Upload stores srcPath into the RIA object tree for (datasetID, key),
// writing through a `.part` sidecar so an interrupted upload leaves a
// partial object that the next Upload call detects and resumes from.
func (s *RIAStore) Upload(ctx context.Context, datasetID, key, srcPath string) error {
	target := s.Root
	if s.PushURL != nil {
		target = *s.PushURL
	}
	switch target.Transport {
	case "file":
		return s.uploadFile(target, datasetID, key, srcPath)
	case "ssh":
		return s.uploadSSH(ctx, target, datasetID, key, srcPath)
	case "http", "https":
		return errs.New(errs.InvalidArgument, "Upload: ria+%s stores are read-only, push via ria+file or ria+ssh instead", target.Transport)
	default:
		return errs.New(errs.InvalidArgument, "Upload: unknown ria transport %q", target.Transport)
	}
}

// uploadSSH stores srcPath into a ria+ssh target, resuming a `.part`
// sidecar the same way uploadFile does, via the SSH shim's streamed stdin
// rather than a local filesystem append.
func (s *RIAStore) uploadSSH(ctx context.Context, target RIAURL, datasetID, key, srcPath string) error {
	if s.SSH == nil {
		return errs.New(errs.InvalidArgument, "ria+ssh store requires an SSH shim")
	}
	t, err := ParseSSHURL(target.Base.String())
	if err != nil {
		return err
	}
	dst := ObjectPath(t.Path, datasetID, key)
	partial := dst + ".part"

	var sizeOut strings.Builder
	sizeCmd := fmt.Sprintf("stat -c%%s %s 2>/dev/null || echo 0", shellQuote(partial))
	if err := s.SSH.RunStream(ctx, s.SocketDir, t, []string{"sh", "-c", sizeCmd}, &sizeOut, nil); err != nil {
		return errs.Wrap(errs.Transfer, err, "probe partial upload size for %s", partial)
	}
	startAt, _ := strconv.ParseInt(strings.TrimSpace(sizeOut.String()), 10, 64)

	in, err := os.Open(srcPath)
	if err != nil {
		return errs.Wrap(errs.Transfer, err, "open local copy %s", srcPath)
	}
	defer in.Close()
	if startAt > 0 {
		if _, err := in.Seek(startAt, io.SeekStart); err != nil {
			return err
		}
	}

	redirect := ">"
	if startAt > 0 {
		redirect = ">>"
	}
	writeCmd := fmt.Sprintf("mkdir -p %s && cat %s %s", shellQuote(filepath.Dir(dst)), redirect, shellQuote(partial))
	if err := s.SSH.RunStream(ctx, s.SocketDir, t, []string{"sh", "-c", writeCmd}, nil, in); err != nil {
		return errs.Wrap(errs.Transfer, err, "write ria object %s", partial)
	}

	moveCmd := fmt.Sprintf("mv %s %s", shellQuote(partial), shellQuote(dst))
	if err := s.SSH.RunStream(ctx, s.SocketDir, t, []string{"sh", "-c", moveCmd}, nil, nil); err != nil {
		return errs.Wrap(errs.Transfer, err, "finalize ria object %s", dst)
	}
	return nil
}

// uploadFile stores srcPath into a ria+file target, writing through a
// `.part` sidecar so an interrupted upload leaves a partial object that the
// next Upload call detects and resumes from.
func (s *RIAStore) uploadFile(target RIAURL, datasetID, key, srcPath string) error {
	dst := ObjectPath(target.Base.Path, datasetID, key)
	partial := dst + ".part"

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errs.Wrap(errs.Permission, err, "create ria object directory for %s", dst)
	}

	var startAt int64
	if info, err := os.Stat(partial); err == nil {
		startAt = info.Size()
	}

	in, err := os.Open(srcPath)
	if err != nil {
		return errs.Wrap(errs.Transfer, err, "open local copy %s", srcPath)
	}
	defer in.Close()
	if startAt > 0 {
		if _, err := in.Seek(startAt, io.SeekStart); err != nil {
			return err
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if startAt > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(partial, flags, 0o644)
	if err != nil {
		return errs.Wrap(errs.Permission, err, "open %s for append", partial)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return errs.Wrap(errs.Transfer, err, "write ria object %s", partial)
	}
	return os.Rename(partial, dst)
}
