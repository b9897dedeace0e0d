package storage

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir(), "http://localhost:8080", "test-secret")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return store
}

func TestWriteReadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	key, err := store.Write(ctx, "raw/job-1/photo-1.jpg", []byte("image bytes"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if key != "raw/job-1/photo-1.jpg" {
		t.Fatalf("returned key = %q", key)
	}

	data, err := store.Read(ctx, key)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "image bytes" {
		t.Fatalf("read back %q", data)
	}
}

func TestWriteRejectsTraversalKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"../escape.jpg", "a/../../escape.jpg", "..", "a/..", "", "."} {
		if _, err := store.Write(ctx, key, []byte("x")); err == nil {
			t.Fatalf("Write(%q) accepted a traversal key", key)
		}
	}
	if _, err := os.Stat(filepath.Join(store.BasePath(), "..", "escape.jpg")); err == nil {
		t.Fatal("a file escaped the storage root")
	}
}

func TestWriteNormalizesLeadingSlash(t *testing.T) {
	store := newTestStore(t)

	key, err := store.Write(context.Background(), "/processed/p.jpg", []byte("x"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if key != "processed/p.jpg" {
		t.Fatalf("key = %q, want processed/p.jpg", key)
	}
}

func TestSignedURLVerifies(t *testing.T) {
	store := newTestStore(t)

	signed, err := store.SignedURL("raw/job-1/photo-1.jpg", time.Minute)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if !strings.HasPrefix(signed, "http://localhost:8080/static/raw/job-1/photo-1.jpg?") {
		t.Fatalf("signed url = %q", signed)
	}

	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse signed url: %v", err)
	}
	q := u.Query()
	if err := store.VerifySignedQuery("raw/job-1/photo-1.jpg", q.Get("expires"), q.Get("sig")); err != nil {
		t.Fatalf("VerifySignedQuery: %v", err)
	}
}

func TestSignedURLRejectsTampering(t *testing.T) {
	store := newTestStore(t)

	signed, _ := store.SignedURL("raw/job-1/photo-1.jpg", time.Minute)
	u, _ := url.Parse(signed)
	q := u.Query()

	// Same signature presented for a different key.
	if err := store.VerifySignedQuery("raw/job-1/photo-2.jpg", q.Get("expires"), q.Get("sig")); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("key swap: err = %v, want ErrBadSignature", err)
	}
	// Garbage signature.
	if err := store.VerifySignedQuery("raw/job-1/photo-1.jpg", q.Get("expires"), "bogus"); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("bad sig: err = %v, want ErrBadSignature", err)
	}
	// Non-numeric expiry.
	if err := store.VerifySignedQuery("raw/job-1/photo-1.jpg", "soon", q.Get("sig")); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("bad expiry: err = %v, want ErrBadSignature", err)
	}
}

func TestSignedURLExpires(t *testing.T) {
	store := newTestStore(t)

	signed, _ := store.SignedURL("raw/job-1/photo-1.jpg", -time.Minute)
	u, _ := url.Parse(signed)
	q := u.Query()

	if err := store.VerifySignedQuery("raw/job-1/photo-1.jpg", q.Get("expires"), q.Get("sig")); !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
}

func TestSignedURLDiffersPerSecret(t *testing.T) {
	a := newTestStore(t)
	b, err := NewFileStore(t.TempDir(), "http://localhost:8080", "other-secret")
	if err != nil {
		t.Fatal(err)
	}

	signed, _ := a.SignedURL("raw/k.jpg", time.Minute)
	u, _ := url.Parse(signed)
	q := u.Query()

	if err := b.VerifySignedQuery("raw/k.jpg", q.Get("expires"), q.Get("sig")); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("cross-secret verify: err = %v, want ErrBadSignature", err)
	}
}
