// Package storage moves job files between the local run directory and
// remote locations: S3 objects and HTTP URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoS3 is returned for s3:// inputs when no S3 client is configured.
var ErrNoS3 = errors.New("s3 input given but S3 is not configured")

// Downloader fetches an S3 object to a local path. *S3Client satisfies it.
type Downloader interface {
	DownloadFile(ctx context.Context, bucket, key, dst string) error
}

// Fetcher resolves job input references to local files.
type Fetcher struct {
	S3   Downloader
	HTTP *http.Client
}

// IsRemote reports whether ref needs downloading.
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "s3://") || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// Fetch returns a local path for ref. Local paths and file:// URLs are
// returned as is; remote files are downloaded into a fresh directory under
// dir, keeping their base name.
func (f *Fetcher) Fetch(ctx context.Context, ref, dir string) (string, error) {
	switch {
	case strings.HasPrefix(ref, "file://"):
		return strings.TrimPrefix(ref, "file://"), nil
	case !IsRemote(ref):
		return ref, nil
	}

	sub, err := os.MkdirTemp(dir, "in-*")
	if err != nil {
		return "", fmt.Errorf("download dir: %w", err)
	}
	dst := filepath.Join(sub, RemoteName(ref))

	if strings.HasPrefix(ref, "s3://") {
		if f.S3 == nil {
			return "", ErrNoS3
		}
		bucket, key, err := ParseS3URL(ref)
		if err != nil {
			return "", err
		}
		if err := f.S3.DownloadFile(ctx, bucket, key, dst); err != nil {
			return "", err
		}
		return dst, nil
	}

	if err := f.downloadHTTP(ctx, ref, dst); err != nil {
		_ = os.Remove(dst)
		return "", err
	}
	return dst, nil
}

func (f *Fetcher) downloadHTTP(ctx context.Context, ref, dst string) error {
	client := f.HTTP
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", ref, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: http %d", ref, resp.StatusCode)
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return fmt.Errorf("download %s: %w", ref, err)
	}
	return out.Close()
}

// RemoteName is the base file name of a remote reference.
func RemoteName(ref string) string {
	p := ref
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		p = u.Path
	}
	name := path.Base(p)
	if name == "." || name == "/" || name == "" {
		return "download"
	}
	return name
}
