package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/dunamismax/webopt/internal/domain"
)

const objectStoreScheme = "s3"

type objectWriter interface {
	EnsureBucket(ctx context.Context) error
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
}

// ObjectStoreEmitter uploads each output as Prefix/<file name>.
type ObjectStoreEmitter struct {
	Storage objectWriter
	Prefix  string
}

func (e ObjectStoreEmitter) Prepare(ctx context.Context) error {
	if e.Storage == nil {
		return errors.New("storage client is required")
	}
	if err := e.Storage.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	return nil
}

func (e ObjectStoreEmitter) Emit(ctx context.Context, req Request, out Output) (string, error) {
	if e.Storage == nil {
		return "", errors.New("storage client is required")
	}

	objectKey := ObjectKey(e.Prefix, req.Name)
	if err := e.Storage.WriteObject(ctx, objectKey, out.Data, contentTypeForFormat(out.Format)); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	return objectKey, nil
}

func ObjectKey(prefix, name string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	name = filepath.Base(name)
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// Target is where a batch writes: a local directory or an s3://bucket/prefix.
type Target struct {
	Dir    string
	Bucket string
	Prefix string
}

func ParseTarget(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, fmt.Errorf("%w: output location is required", domain.ErrInvalidParameter)
	}
	if !strings.HasPrefix(strings.ToLower(raw), objectStoreScheme+"://") {
		return Target{Dir: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("%w: parse output %q: %v", domain.ErrInvalidParameter, raw, err)
	}
	if u.Host == "" {
		return Target{}, fmt.Errorf("%w: output %q has no bucket", domain.ErrInvalidParameter, raw)
	}
	return Target{Bucket: u.Host, Prefix: strings.Trim(u.Path, "/")}, nil
}

func (t Target) IsObjectStore() bool {
	return t.Bucket != ""
}

func (t Target) String() string {
	if !t.IsObjectStore() {
		return t.Dir
	}
	if t.Prefix == "" {
		return objectStoreScheme + "://" + t.Bucket
	}
	return objectStoreScheme + "://" + t.Bucket + "/" + t.Prefix
}
