package specialremote

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/datalad-core/datalad/internal/errs"
	"github.com/datalad-core/datalad/internal/transfer"
)

// WebBackend is the "datalad" special remote: a thin claim/check/transfer
// wrapper around an ordinary HTTP(S) URL recorded against the key, for
// content the annex itself cannot fetch directly.
type WebBackend struct {
	HTTP *transfer.HTTPSource
	URLs map[string]string // key -> url, populated by CLAIMURL/registration
}

func (b *WebBackend) Name() string   { return "datalad" }
func (b *WebBackend) Prepare() error { return nil }
func (b *WebBackend) Cost() int      { return 200 }

func (b *WebBackend) Retrieve(key, destFile string) error {
	url, ok := b.URLs[key]
	if !ok {
		return errs.New(errs.RemoteNotAvailable, "no known url for key %s", key)
	}
	concrete, ok := resolveConcreteURL(url)
	if !ok {
		return errs.New(errs.InvalidArgument, "url %s is not one of the schemes this remote claims", url)
	}
	return b.HTTP.Fetch(context.Background(), concrete, destFile, -1, func(transfer.Progress) {})
}

func (b *WebBackend) Store(key, srcFile string) error {
	return errs.New(errs.InvalidArgument, "the datalad web remote is read-only")
}

func (b *WebBackend) CheckPresent(key string) (bool, error) {
	_, ok := b.URLs[key]
	return ok, nil
}

func (b *WebBackend) Remove(key string) error {
	delete(b.URLs, key)
	return nil
}

// ClaimURL matches only the closed set of schemes this remote resolves
// to a concrete HTTP(S) GET: Singularity Hub references, RIA http(s)
// object-store URLs, versioned S3 object URLs, and the "///" shorthand
// for the public dataset collection. Plain http(s):// URLs belong to
// annex's built-in web remote, not this one.
func (b *WebBackend) ClaimURL(url string) bool {
	_, ok := resolveConcreteURL(url)
	return ok
}

func (b *WebBackend) CheckURL(url string) (bool, int64, error) {
	_, ok := resolveConcreteURL(url)
	if !ok {
		return false, -1, errs.New(errs.InvalidArgument, "url %s is not one of the schemes this remote claims", url)
	}
	return true, -1, nil
}

// resolveConcreteURL recognizes the closed set of schemes the "datalad"
// remote claims and rewrites each to the concrete HTTP(S) GET that
// actually fetches the content.
func resolveConcreteURL(url string) (string, bool) {
	switch {
	case strings.HasPrefix(url, "shub://"):
		return "https://datasets.datalad.org/shub/" + strings.TrimPrefix(url, "shub://"), true
	case strings.HasPrefix(url, "ria+http://"):
		return strings.TrimPrefix(url, "ria+"), true
	case strings.HasPrefix(url, "ria+https://"):
		return strings.TrimPrefix(url, "ria+"), true
	case strings.HasPrefix(url, "///"):
		return "https://datasets.datalad.org/" + strings.TrimPrefix(url, "///"), true
	case isVersionedS3URL(url):
		return s3ToHTTPS(url)
	}
	return "", false
}

// isVersionedS3URL reports whether url is an s3:// URL carrying an
// explicit object version id, the form this remote claims (unversioned
// S3 buckets are handled by the S3 transfer source directly).
func isVersionedS3URL(url string) bool {
	return strings.HasPrefix(url, "s3://") && strings.Contains(url, "versionId=")
}

func s3ToHTTPS(url string) (string, bool) {
	rest := strings.TrimPrefix(url, "s3://")
	bucket, key, found := strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", false
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", bucket, key), true
}

// ArchivesBackend is the "datalad-archives" special remote, wired to
// transfer.ArchiveExtractor for member extraction.
type ArchivesBackend struct {
	Extractor    *transfer.ArchiveExtractor
	ArchivePath  func(archiveKey string) (string, error) // resolves an archive key to its local path, fetching if needed
}

func (b *ArchivesBackend) Name() string   { return "datalad-archives" }
func (b *ArchivesBackend) Prepare() error { return nil }
func (b *ArchivesBackend) Cost() int      { return 300 }

func (b *ArchivesBackend) Retrieve(key, destFile string) error {
	member, err := transfer.ParseArchiveURL(key)
	if err != nil {
		return err
	}
	archivePath, err := b.ArchivePath(member.ArchiveKey)
	if err != nil {
		return err
	}
	return b.Extractor.Extract(context.Background(), archivePath, member.Member, destFile)
}

func (b *ArchivesBackend) Store(key, srcFile string) error {
	return errs.New(errs.InvalidArgument, "the datalad-archives remote is read-only")
}

func (b *ArchivesBackend) CheckPresent(key string) (bool, error) {
	member, err := transfer.ParseArchiveURL(key)
	if err != nil {
		return false, nil
	}
	archivePath, err := b.ArchivePath(member.ArchiveKey)
	if err != nil {
		return false, nil
	}
	_, statErr := os.Stat(archivePath)
	return statErr == nil, nil
}

func (b *ArchivesBackend) Remove(key string) error {
	return errs.New(errs.InvalidArgument, "the datalad-archives remote does not support removal")
}

func (b *ArchivesBackend) ClaimURL(url string) bool {
	return len(url) > len("dl+archive:") && url[:len("dl+archive:")] == "dl+archive:"
}

func (b *ArchivesBackend) CheckURL(url string) (bool, int64, error) {
	member, err := transfer.ParseArchiveURL(url)
	if err != nil {
		return false, 0, err
	}
	return true, member.Size, nil
}

// ORABackend is the ORA special remote, wired to transfer.RIAStore for the
// uniform ria+file/ria+ssh/ria+http(s) object access.
type ORABackend struct {
	Store     *transfer.RIAStore
	DatasetID string
}

func (b *ORABackend) Name() string { return "ora" }

func (b *ORABackend) Prepare() error {
	return b.Store.CheckVersion(context.Background())
}

func (b *ORABackend) Cost() int { return 100 }

func (b *ORABackend) Retrieve(key, destFile string) error {
	return b.Store.Fetch(context.Background(), b.DatasetID, key, destFile)
}

func (b *ORABackend) Store(key, srcFile string) error {
	return b.Store.Upload(context.Background(), b.DatasetID, key, srcFile)
}

func (b *ORABackend) CheckPresent(key string) (bool, error) {
	return b.Store.Available(context.Background(), b.DatasetID, key)
}

func (b *ORABackend) Remove(key string) error {
	return errs.New(errs.InvalidArgument, "ORA remove is not implemented; drop content via the store's own maintenance tooling")
}

func (b *ORABackend) ClaimURL(url string) bool {
	return len(url) > len("ria+") && url[:len("ria+")] == "ria+"
}

func (b *ORABackend) CheckURL(url string) (bool, int64, error) {
	_, err := transfer.ParseRIAURL(url)
	return err == nil, -1, err
}
