// Package blobstore writes generated artifacts to their destination. A
// destination is either a local path or an s3://bucket/key URL; both are
// written whole, so readers never observe a partial corpus.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	// ErrWrite wraps every failure to persist an artifact.
	ErrWrite = errors.New("artifact write failed")
	// ErrInvalidDestination reports a malformed s3:// URL or an empty path.
	ErrInvalidDestination = errors.New("invalid destination")
)

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

// Info describes a stored artifact.
type Info struct {
	Location    string `json:"location"`
	Size        int64  `json:"size"`
	SHA256      string `json:"sha256"`
	ContentType string `json:"content_type"`
}

// Store persists one artifact under a key.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) (Info, error)
}

// S3Options configures the S3 backend. Empty credentials fall back to the
// default AWS credential chain.
type S3Options struct {
	Region          string
	Endpoint        string
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// HTTPClient overrides the transport; used by tests.
	HTTPClient *http.Client
}

// Open resolves dest to a store and the key to write under it.
func Open(ctx context.Context, dest string, opts S3Options) (Store, string, error) {
	if dest == "" {
		return nil, "", fmt.Errorf("%w: empty output path", ErrInvalidDestination)
	}
	if !IsS3URL(dest) {
		return NewFileStore(filepath.Dir(dest)), filepath.Base(dest), nil
	}
	bucket, key, err := ParseS3URL(dest)
	if err != nil {
		return nil, "", err
	}
	store, err := NewS3Store(ctx, bucket, opts)
	if err != nil {
		return nil, "", err
	}
	return store, key, nil
}

// IsS3URL reports whether dest names an object rather than a file.
func IsS3URL(dest string) bool {
	return strings.HasPrefix(dest, "s3://")
}

// ParseS3URL splits s3://bucket/key. The key must name an object, not a prefix.
func ParseS3URL(dest string) (bucket, key string, err error) {
	bucket, key, ok := strings.Cut(strings.TrimPrefix(dest, "s3://"), "/")
	if !IsS3URL(dest) || !ok || bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("%w: %q (want s3://bucket/key)", ErrInvalidDestination, dest)
	}
	return bucket, key, nil
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ---------------------------------------------------------------------------
// FileStore
// ---------------------------------------------------------------------------

// FileStore writes artifacts beneath a local directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Put writes body to a temporary sibling file and renames it into place.
func (s *FileStore) Put(_ context.Context, key string, body io.Reader, contentType string) (Info, error) {
	path := filepath.Join(s.dir, key)
	tmp, err := os.CreateTemp(s.dir, "."+filepath.Base(key)+".*.tmp")
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrWrite, err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), body)
	if err != nil {
		return Info{}, fmt.Errorf("%w: writing %s: %v", ErrWrite, path, err)
	}
	if err := tmp.Sync(); err != nil {
		return Info{}, fmt.Errorf("%w: syncing %s: %v", ErrWrite, path, err)
	}
	if err := tmp.Close(); err != nil {
		return Info{}, fmt.Errorf("%w: closing %s: %v", ErrWrite, path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrWrite, err)
	}
	committed = true

	return Info{
		Location:    path,
		Size:        n,
		SHA256:      hex.EncodeToString(h.Sum(nil)),
		ContentType: contentType,
	}, nil
}

// ---------------------------------------------------------------------------
// S3Store
// ---------------------------------------------------------------------------

// S3Store writes artifacts to one bucket.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store builds a client from opts for bucket.
func NewS3Store(ctx context.Context, bucket string, opts S3Options) (*S3Store, error) {
	var loaders []func(*config.LoadOptions) error
	if opts.Region != "" {
		loaders = append(loaders, config.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken)))
	}
	if opts.HTTPClient != nil {
		loaders = append(loaders, config.WithHTTPClient(opts.HTTPClient))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = opts.PathStyle
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	return &S3Store{client: client, bucket: bucket}, nil
}

// Put uploads body in a single PutObject call. The body is buffered so the
// request can be signed and retried.
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, contentType string) (Info, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return Info{}, fmt.Errorf("%w: reading artifact: %v", ErrWrite, err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return Info{}, fmt.Errorf("%w: s3://%s/%s: %v", ErrWrite, s.bucket, key, err)
	}
	return Info{
		Location:    "s3://" + s.bucket + "/" + key,
		Size:        int64(len(data)),
		SHA256:      digest(data),
		ContentType: contentType,
	}, nil
}
