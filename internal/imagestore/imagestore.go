// Package imagestore resolves a label image path to validated image bytes.
package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/sells-group/label-copilot/internal/reasoning"
)

// DefaultMaxBytes is the largest accepted image.
const DefaultMaxBytes = 10 << 20

// Reason classifies an image failure.
type Reason string

const (
	ReasonUnreadable  Reason = "unreadable"
	ReasonUndecodable Reason = "undecodable"
	ReasonTooLarge    Reason = "too_large"
	ReasonForbidden   Reason = "forbidden"
)

// ImageError reports why an image could not be used.
type ImageError struct {
	Path   string
	Reason Reason
	Err    error
}

func (e *ImageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("imagestore: %s %s: %v", e.Reason, e.Path, e.Err)
	}
	return fmt.Sprintf("imagestore: %s %s", e.Reason, e.Path)
}

func (e *ImageError) Unwrap() error { return e.Err }

// Store opens label images.
type Store interface {
	Open(ctx context.Context, path string) (reasoning.Image, error)
}

// ObjectGetter is the S3 operation used for s3:// paths. *s3.Client
// satisfies it.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Option configures a Loader.
type Option func(*Loader)

// WithS3 enables s3://bucket/key paths.
func WithS3(c ObjectGetter) Option {
	return func(l *Loader) {
		l.s3 = c
	}
}

// WithRoot confines local paths to dir. Relative paths are resolved against
// it, and symlinks may not leave it.
func WithRoot(dir string) Option {
	return func(l *Loader) {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		l.root = filepath.Clean(dir)
	}
}

// WithAllowedBuckets confines s3:// paths to the named buckets. With no
// names every s3:// path is refused.
func WithAllowedBuckets(buckets ...string) Option {
	return func(l *Loader) {
		l.buckets = make(map[string]bool, len(buckets))
		for _, b := range buckets {
			if b = strings.TrimSpace(b); b != "" {
				l.buckets[b] = true
			}
		}
	}
}

// Loader reads images from the local filesystem or S3.
type Loader struct {
	maxBytes int64
	s3       ObjectGetter
	root     string
	buckets  map[string]bool // nil means any bucket
}

// New creates a Loader. maxBytes <= 0 uses DefaultMaxBytes.
func New(maxBytes int64, opts ...Option) *Loader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	l := &Loader{maxBytes: maxBytes}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open reads path and checks that its bytes decode as a supported image
// format. Every failure is an *ImageError.
func (l *Loader) Open(ctx context.Context, path string) (reasoning.Image, error) {
	var (
		data []byte
		err  error
	)
	if err := l.Check(path); err != nil {
		return reasoning.Image{}, err
	}
	if bucket, key, ok := parseS3Path(path); ok {
		data, err = l.readS3(ctx, path, bucket, key)
	} else {
		data, err = l.readFile(path)
	}
	if err != nil {
		return reasoning.Image{}, err
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return reasoning.Image{}, &ImageError{Path: path, Reason: ReasonUndecodable, Err: err}
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return reasoning.Image{}, &ImageError{Path: path, Reason: ReasonUndecodable, Err: eris.New("zero dimensions")}
	}

	return reasoning.Image{Data: data, MediaType: "image/" + format}, nil
}

// Check reports with a ReasonForbidden *ImageError when path lies outside
// the configured root or bucket allow-list. It does not touch the file.
func (l *Loader) Check(path string) error {
	if bucket, _, ok := parseS3Path(path); ok {
		if l.buckets != nil && !l.buckets[bucket] {
			return &ImageError{Path: path, Reason: ReasonForbidden, Err: eris.Errorf("bucket %q is not allowed", bucket)}
		}
		return nil
	}
	if strings.HasPrefix(path, "s3://") {
		return &ImageError{Path: path, Reason: ReasonUnreadable, Err: eris.New("malformed s3 path")}
	}
	if l.root == "" {
		return nil
	}
	if _, err := l.relToRoot(path); err != nil {
		return &ImageError{Path: path, Reason: ReasonForbidden, Err: err}
	}
	return nil
}

// relToRoot returns path relative to the root, refusing lexical escapes.
func (l *Loader) relToRoot(path string) (string, error) {
	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(l.root, p)
	}
	rel, err := filepath.Rel(l.root, filepath.Clean(p))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", eris.Errorf("path is outside %s", l.root)
	}
	return rel, nil
}

func (l *Loader) openLocal(path string) (*os.File, error) {
	if l.root == "" {
		return os.Open(path)
	}
	rel, err := l.relToRoot(path)
	if err != nil {
		return nil, err
	}
	root, err := os.OpenRoot(l.root)
	if err != nil {
		return nil, err
	}
	defer root.Close() //nolint:errcheck
	// os.Root refuses symlinks that resolve outside the root.
	return root.Open(rel)
}

func (l *Loader) readFile(path string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &ImageError{Path: path, Reason: ReasonUnreadable, Err: eris.New("empty path")}
	}
	f, err := l.openLocal(path)
	if err != nil {
		return nil, &ImageError{Path: path, Reason: ReasonUnreadable, Err: err}
	}
	defer f.Close() //nolint:errcheck

	if info, err := f.Stat(); err == nil {
		if info.IsDir() {
			return nil, &ImageError{Path: path, Reason: ReasonUnreadable, Err: eris.New("is a directory")}
		}
		if info.Size() > l.maxBytes {
			return nil, &ImageError{Path: path, Reason: ReasonTooLarge}
		}
	}
	return l.readLimited(path, f)
}

func (l *Loader) readS3(ctx context.Context, path, bucket, key string) ([]byte, error) {
	if l.s3 == nil {
		return nil, &ImageError{Path: path, Reason: ReasonUnreadable, Err: eris.New("s3 is not configured")}
	}
	out, err := l.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &ImageError{Path: path, Reason: ReasonUnreadable, Err: eris.Wrap(err, "s3 get object")}
	}
	defer out.Body.Close() //nolint:errcheck

	if out.ContentLength != nil && *out.ContentLength > l.maxBytes {
		return nil, &ImageError{Path: path, Reason: ReasonTooLarge}
	}
	return l.readLimited(path, out.Body)
}

func (l *Loader) readLimited(path string, r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, &ImageError{Path: path, Reason: ReasonUnreadable, Err: err}
	}
	if int64(len(data)) > l.maxBytes {
		return nil, &ImageError{Path: path, Reason: ReasonTooLarge}
	}
	if len(data) == 0 {
		return nil, &ImageError{Path: path, Reason: ReasonUndecodable, Err: eris.New("empty file")}
	}
	return data, nil
}

// parseS3Path splits "s3://bucket/key".
func parseS3Path(path string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(path, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
