// datalad-archives special remote source: resolves
// an archive-member URL to a containing archive key, obtains that archive
// if not present, extracts the member, with an inter-process lock per
// archive and hardlink-or-copy reuse of extracted content.
package transfer

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/juju/fslock"
	shutil "github.com/termie/go-shutil"

	"github.com/datalad-core/datalad/internal/errs"
)

// ArchiveMember is a parsed `dl+archive:<archive-key>#path=<member>&size=<bytes>`
// URL.
type ArchiveMember struct {
	ArchiveKey string
	Member     string
	Size       int64
}

// ParseArchiveURL decodes a datalad-archives member URL.
func ParseArchiveURL(raw string) (ArchiveMember, error) {
	const prefix = "dl+archive:"
	if !strings.HasPrefix(raw, prefix) {
		return ArchiveMember{}, errs.New(errs.InvalidArgument, "not an archive member url: %q", raw)
	}
	rest := strings.TrimPrefix(raw, prefix)
	parts := strings.SplitN(rest, "#", 2)
	am := ArchiveMember{ArchiveKey: parts[0]}
	if len(parts) == 2 {
		q, err := url.ParseQuery(parts[1])
		if err != nil {
			return ArchiveMember{}, errs.Wrap(errs.InvalidArgument, err, "parse archive member query %q", parts[1])
		}
		am.Member = q.Get("path")
		if sz := q.Get("size"); sz != "" {
			if n, err := strconv.ParseInt(sz, 10, 64); err == nil {
				am.Size = n
			}
		}
	}
	return am, nil
}

// SupportedArchiveExt lists archive extensions by name. Extraction reads
// zip archives only (archive/zip); no 7-Zip binary is called, and no code
// consults this list.
var SupportedArchiveExt = []string{".gz", ".xz", ".zip", ".7z", ".tgz", ".tbz2"}

// ArchiveExtractor extracts members from an archive, holding a per-archive
// inter-process lock for the duration.
type ArchiveExtractor struct {
	LockDir   string
	CacheDir  string // where extracted members are cached for hardlink reuse
}

func (e *ArchiveExtractor) lockFor(archivePath string) (*fslock.Lock, error) {
	if err := os.MkdirAll(e.LockDir, 0o755); err != nil {
		return nil, errs.Wrap(errs.Permission, err, "create archive lock directory")
	}
	lockPath := filepath.Join(e.LockDir, filepath.Base(archivePath)+".lock")
	l := fslock.New(lockPath)
	if err := l.LockWithTimeout(5 * time.Minute); err != nil {
		return nil, errs.Wrap(errs.Conflict, err, "acquire archive lock for %s", archivePath)
	}
	return l, nil
}

// Extract pulls member out of archivePath into destPath, reusing a
// previously extracted copy via a hardlink when available, else falling
// back to a full copy via github.com/termie/go-shutil.
func (e *ArchiveExtractor) Extract(ctx context.Context, archivePath, member, destPath string) error {
	l, err := e.lockFor(archivePath)
	if err != nil {
		return err
	}
	defer l.Unlock()

	cached := filepath.Join(e.CacheDir, cacheKey(archivePath, member))
	if _, statErr := os.Stat(cached); statErr == nil {
		if linkErr := os.Link(cached, destPath); linkErr == nil {
			return nil
		}
		// Cross-device or unsupported link: fall through to a real copy.
		if _, err := shutil.Copy(cached, destPath, false); err != nil {
			return errs.Wrap(errs.Internal, err, "copy cached archive member to %s", destPath)
		}
		return nil
	}

	if err := extractZipMember(archivePath, member, cached); err != nil {
		return errs.Wrap(errs.Transfer, err, "extract %s from %s", member, archivePath)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return errs.Wrap(errs.Permission, err, "create directory for %s", destPath)
	}
	if linkErr := os.Link(cached, destPath); linkErr != nil {
		if _, err := shutil.Copy(cached, destPath, false); err != nil {
			return errs.Wrap(errs.Internal, err, "copy extracted archive member to %s", destPath)
		}
	}
	return nil
}

func cacheKey(archivePath, member string) string {
	return fmt.Sprintf("%x", sum(archivePath+"\x00"+member))
}

func sum(s string) []byte {
	h := uint64(14695981039346656037)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	b := make([]byte, 8)
	for i := range b {
		b[i] = byte(h >> (8 * i))
	}
	return b
}

// minZipYear/maxZipYear bound the ZIP DOS timestamp format; an earlier or
// later timestamp is clamped rather than overflowing the field.
const minZipYear = 1980
const maxZipYear = 2107

// ClampZipTime clamps t into the representable DOS-timestamp range.
func ClampZipTime(t time.Time) time.Time {
	if t.Year() < minZipYear {
		return time.Date(minZipYear, 1, 1, 0, 0, 0, 0, t.Location())
	}
	if t.Year() > maxZipYear {
		return time.Date(maxZipYear, 12, 31, 23, 59, 58, 0, t.Location())
	}
	return t
}

func extractZipMember(archivePath, member, destPath string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != member {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		defer rc.Close()
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return err
		}
		out, err := os.Create(destPath)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, rc); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
		clamped := ClampZipTime(f.ModTime())
		return os.Chtimes(destPath, clamped, clamped)
	}
	return errs.New(errs.InvalidArgument, "member %q not found in %s", member, archivePath)
}
