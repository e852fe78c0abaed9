package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/datalad-core/datalad/internal/config"
	"github.com/datalad-core/datalad/internal/errs"
)

// HTTPSource downloads over HTTP(S) with resumption, following at most one
// authentication redirect, honoring a configured User-Agent, and reporting
// progress via a callback.
type HTTPSource struct {
	Client    *http.Client
	UserAgent string
	Config    *config.Store
}

// credentialFor resolves Basic-auth credentials for url against the
// configured providers, prompting interactively on a controlling terminal
// when a matching provider has no secret on file.
func (s *HTTPSource) credentialFor(url string) (user, secret string, ok bool) {
	if s.Config == nil {
		return "", "", false
	}
	p, err := s.Config.MatchProvider(url)
	if err != nil || p == nil {
		return "", "", false
	}
	secret = p.Secret
	if secret == "" && p.Token != "" {
		secret = p.Token
	}
	if secret == "" {
		prompted, err := config.PromptSecret(os.Stderr, int(os.Stdin.Fd()), fmt.Sprintf("password for %s: ", p.Name))
		if err != nil {
			return p.User, "", false
		}
		secret = prompted
	}
	return p.User, secret, true
}

func NewHTTPSource(userAgent string, cfg *config.Store) *HTTPSource {
	if userAgent == "" {
		userAgent = "datalad-core/1.0"
	}
	return &HTTPSource{Client: &http.Client{}, UserAgent: userAgent, Config: cfg}
}

// Fetch downloads url to destPath, resuming a partial download via a Range
// request when destPath already has bytes on disk, and reporting progress
// in humanize-formatted labels.
func (s *HTTPSource) Fetch(ctx context.Context, url, destPath string, expectedSize int64, onProgress func(Progress)) error {
	var startAt int64
	if info, err := os.Stat(destPath + ".part"); err == nil {
		startAt = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, err, "build request for %s", url)
	}
	req.Header.Set("User-Agent", s.UserAgent)
	if startAt > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", startAt))
	}
	if user, secret, ok := s.credentialFor(url); ok {
		req.SetBasicAuth(user, secret)
	}

	resp, err := s.doWithOneAuthRedirect(req)
	if err != nil {
		return errs.Wrap(errs.Transfer, err, "GET %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return errs.New(errs.Transfer, "GET %s: unexpected status %d", url, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusPartialContent {
		startAt = 0
	}

	flags := os.O_CREATE | os.O_WRONLY
	if startAt > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(destPath+".part", flags, 0o644)
	if err != nil {
		return errs.Wrap(errs.Permission, err, "open %s for write", destPath)
	}
	defer f.Close()

	total := expectedSize
	if total <= 0 && resp.ContentLength > 0 {
		total = resp.ContentLength + startAt
	}
	if total <= 0 {
		total = -1
	}

	done := startAt
	buf := make([]byte, 256*1024)
	for {
		select {
		case <-ctx.Done():
			return errs.Wrap(errs.Cancelled, ctx.Err(), "download of %s cancelled", url)
		default:
		}
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return errs.Wrap(errs.Transfer, werr, "write %s", destPath)
			}
			done += int64(n)
			onProgress(Progress{TaskID: destPath, BytesDone: done, BytesTotal: total, Label: humanize.Bytes(uint64(done))})
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return errs.Wrap(errs.Transfer, rerr, "read body of %s", url)
		}
	}

	if err := os.Rename(destPath+".part", destPath); err != nil {
		return errs.Wrap(errs.Permission, err, "finalize %s", destPath)
	}
	return nil
}

// Head reports whether url resolves (200) or is confirmed absent (404),
// along with its advertised size when known. Used for availability checks
// that must not pull the body down just to test presence.
func (s *HTTPSource) Head(ctx context.Context, url string) (bool, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, 0, errs.Wrap(errs.InvalidArgument, err, "build HEAD request for %s", url)
	}
	req.Header.Set("User-Agent", s.UserAgent)
	if user, secret, ok := s.credentialFor(url); ok {
		req.SetBasicAuth(user, secret)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return false, 0, errs.Wrap(errs.Transfer, err, "HEAD %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, 0, nil
	}
	if resp.StatusCode >= 300 {
		return false, 0, errs.New(errs.Transfer, "HEAD %s: unexpected status %d", url, resp.StatusCode)
	}
	return true, resp.ContentLength, nil
}

// doWithOneAuthRedirect follows at most one redirect that looks like an
// authentication bounce (a Location change to a different host).
func (s *HTTPSource) doWithOneAuthRedirect(req *http.Request) (*http.Response, error) {
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusFound && resp.StatusCode != http.StatusMovedPermanently && resp.StatusCode != http.StatusSeeOther {
		return resp, nil
	}
	loc := resp.Header.Get("Location")
	resp.Body.Close()
	if loc == "" {
		return nil, errs.New(errs.Transfer, "redirect with no Location header")
	}
	req2, err := http.NewRequestWithContext(req.Context(), http.MethodGet, loc, nil)
	if err != nil {
		return nil, err
	}
	req2.Header = req.Header.Clone()
	return s.Client.Do(req2)
}
