package transfer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/datalad-core/datalad/internal/config"
)

func TestHTTPSourceFetchDownloadsFullFile(t *testing.T) {
	const body = "hello from the test server"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	s := NewHTTPSource("", nil)
	dest := filepath.Join(t.TempDir(), "out.txt")

	var lastProgress Progress
	err := s.Fetch(context.Background(), srv.URL, dest, -1, func(p Progress) { lastProgress = p })
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	assertEqual(t, string(got), body)
	assertEqual(t, lastProgress.BytesDone, int64(len(body)))
}

func TestHTTPSourceFetchResumesPartialDownload(t *testing.T) {
	const body = "0123456789abcdefghij"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHdr := r.Header.Get("Range")
		if rangeHdr == "" {
			w.Write([]byte(body))
			return
		}
		var start int
		if _, err := fmt.Sscanf(rangeHdr, "bytes=%d-", &start); err != nil {
			http.Error(w, "bad range", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Range", "bytes */*")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte(body[start:]))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.txt")
	if err := os.WriteFile(dest+".part", []byte(body[:10]), 0o644); err != nil {
		t.Fatalf("seed partial file: %v", err)
	}

	s := NewHTTPSource("", nil)
	if err := s.Fetch(context.Background(), srv.URL, dest, -1, func(Progress) {}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read resumed file: %v", err)
	}
	assertEqual(t, string(got), body)
}

func TestHTTPSourceCredentialForNoConfigReturnsNotOK(t *testing.T) {
	s := NewHTTPSource("", nil)
	_, _, ok := s.credentialFor("https://example.org/x")
	if ok {
		t.Fatalf("expected no credential when HTTPSource.Config is nil")
	}
}

func TestHTTPSourceCredentialForConfiguredSecret(t *testing.T) {
	cfg := config.New("", "", "", "", "")
	cfg.SetOverride("datalad.credential.ex.url", "https://example.org")
	cfg.SetOverride("datalad.credential.ex.user", "alice")
	cfg.SetOverride("datalad.credential.ex.secret", "s3cr3t")

	s := NewHTTPSource("", cfg)
	user, secret, ok := s.credentialFor("https://example.org/path")
	if !ok {
		t.Fatalf("expected a matched credential")
	}
	assertEqual(t, user, "alice")
	assertEqual(t, secret, "s3cr3t")
}
