// Package transfer implements the Content Availability & Transfer Engine:
// resolving where a file's content currently is, obtaining
// it from one of several candidate sources, and propagating content between
// siblings with retry, chunking, progress, and parallelism.
package transfer

import (
	"strconv"
	"strings"

	"github.com/c2h5oh/datasize"

	"github.com/datalad-core/datalad/internal/errs"
)

// Key is a parsed annex content key. The core treats the digest opaquely
// but understands the size prefix, which is why Size uses
// github.com/c2h5oh/datasize rather than a bare int64: datasize gives a
// human-readable String() for progress/log messages for free.
type Key struct {
	Raw     string
	Backend string
	Size    datasize.ByteSize
	HasSize bool
	Digest  string
}

// ParseKey decodes a raw annex key string of the form
// <backend>-s<size>--<digest> (or <backend>--<digest> when size is absent).
// The digest separator is always the first "--" in the string, found before
// splitting off the backend, since a backend name never contains a dash.
func ParseKey(raw string) (Key, error) {
	k := Key{Raw: raw}
	sep := strings.Index(raw, "--")
	if sep < 0 {
		return Key{}, errs.New(errs.InvalidArgument, "malformed key %q: no digest separator", raw)
	}
	prefix := raw[:sep]
	k.Digest = raw[sep+2:]

	dash := strings.IndexByte(prefix, '-')
	if dash < 0 {
		k.Backend = prefix
		return k, nil
	}
	k.Backend = prefix[:dash]
	sizeField := prefix[dash+1:]
	if !strings.HasPrefix(sizeField, "s") {
		// An E-suffix variant (extension-preserving backend) carries no
		// size field at all; treat any non-"s..." prefix as "no size".
		return k, nil
	}
	sizeStr := strings.TrimPrefix(sizeField, "s")
	n, err := strconv.ParseUint(sizeStr, 10, 64)
	if err != nil {
		return Key{}, errs.Wrap(errs.InvalidArgument, err, "malformed key %q: bad size field %q", raw, sizeField)
	}
	k.Size = datasize.ByteSize(n)
	k.HasSize = true
	return k, nil
}

// String reconstructs the raw key: ParseKey(k).String() == k for every
// key k the annex hands us.
func (k Key) String() string { return k.Raw }
