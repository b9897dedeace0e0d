package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrExpired is returned when a signed URL is past its expiry.
var ErrExpired = errors.New("storage: signed url expired")

// ErrBadSignature is returned when a signed URL fails verification.
var ErrBadSignature = errors.New("storage: invalid signature")

// FileStore persists image bytes onto the local filesystem under opaque keys.
// Writes are durable and reads-after-writes of the same key are consistent,
// which is the contract the worker relies on.
type FileStore struct {
	basePath   string
	publicBase string
	secret     []byte
}

// NewFileStore initializes a FileStore rooted at basePath. The secret signs
// expiring download URLs; publicBase is the externally reachable prefix the
// API serves signed paths under (e.g. http://localhost:8080).
func NewFileStore(basePath, publicBase, secret string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{
		basePath:   basePath,
		publicBase: strings.TrimRight(strings.TrimSpace(publicBase), "/"),
		secret:     []byte(secret),
	}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Write persists the provided bytes at the given relative key and returns the
// canonicalized storage key. Keys are cleaned to prevent directory traversal.
func (s *FileStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	return cleanKey, nil
}

// Read returns the bytes stored at key.
func (s *FileStore) Read(ctx context.Context, key string) ([]byte, error) {
	if s == nil {
		return nil, errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.basePath, filepath.FromSlash(cleanKey)))
	if err != nil {
		return nil, fmt.Errorf("storage: read file: %w", err)
	}
	return data, nil
}

// SignedURL returns a fetchable URL for the key that embeds an HMAC signature
// and expiry timestamp. The API serves these under its /static mount after
// calling VerifySignedQuery.
func (s *FileStore) SignedURL(key string, ttl time.Duration) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	expires := time.Now().Add(ttl).Unix()
	sig := s.sign(cleanKey, expires)
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", sig)
	return s.publicBase + "/static/" + cleanKey + "?" + q.Encode(), nil
}

// VerifySignedQuery validates the signature and expiry produced by SignedURL.
func (s *FileStore) VerifySignedQuery(key, expiresStr, sig string) error {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	expires, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	expected := s.sign(cleanKey, expires)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrBadSignature
	}
	if time.Now().Unix() > expires {
		return ErrExpired
	}
	return nil
}

func (s *FileStore) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", key, expires)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
