// Package downloader fetches the runtime assets the pipeline depends on:
// the DocLayout-YOLO ONNX model and the two output fonts.
package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

const (
	// DefaultTimeout covers the largest asset, the 40MB layout model.
	DefaultTimeout = 300 * time.Second
	// MaxRetries is the maximum number of retry attempts for network errors
	MaxRetries = 3
)

// BaseRetryDelay is the base delay between retries (multiplied by attempt
// number). A variable so tests can shorten it.
var BaseRetryDelay = 2 * time.Second

// Asset describes one downloadable file. SHA256 is optional; when set the
// downloaded file is verified before it is moved into place.
type Asset struct {
	Name   string
	URL    string
	SHA256 string
}

// Stock asset sources.
var (
	ModelAsset = Asset{
		Name: "doclayout_yolo_docstructbench_imgsz1024.onnx",
		URL:  "https://huggingface.co/wybxc/DocLayout-YOLO-DocStructBench-onnx/resolve/main/doclayout_yolo_docstructbench_imgsz1024.onnx",
	}
	LatinFontAsset = Asset{
		Name: "GoNotoKurrent-Regular.ttf",
		URL:  "https://github.com/satbyy/go-noto-universal/releases/download/v7.0/GoNotoKurrent-Regular.ttf",
	}
	TargetFontAsset = Asset{
		Name: "SourceHanSerifCN-Regular.ttf",
		URL:  "https://github.com/timelic/source-han-serif/releases/download/main/SourceHanSerifCN-Regular.ttf",
	}
)

// DefaultAssets are the assets the pipeline needs at runtime.
var DefaultAssets = []Asset{ModelAsset, LatinFontAsset, TargetFontAsset}

// ProgressFunc receives byte level download progress. total is -1 when the
// server does not announce a length.
type ProgressFunc func(name string, received, total int64)

// AssetDownloader downloads assets into a local cache directory.
type AssetDownloader struct {
	httpClient *http.Client
	cacheDir   string
	progress   ProgressFunc
}

// NewAssetDownloader creates a downloader rooted at cacheDir.
func NewAssetDownloader(cacheDir string) *AssetDownloader {
	return &AssetDownloader{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return types.NewAppError(types.ErrNetwork, "too many redirects", nil)
				}
				return nil
			},
		},
		cacheDir: cacheDir,
	}
}

// SetProgressFunc installs a progress callback.
func (d *AssetDownloader) SetProgressFunc(fn ProgressFunc) {
	d.progress = fn
}

// CacheDir returns the downloader's cache directory.
func (d *AssetDownloader) CacheDir() string {
	return d.cacheDir
}

// Ensure returns the local path of an asset, downloading it on first use.
// An existing non-empty file is reused without hitting the network.
func (d *AssetDownloader) Ensure(ctx context.Context, asset Asset) (string, error) {
	if asset.Name == "" || asset.URL == "" {
		return "", types.NewAppError(types.ErrInvalidInput, "asset needs a name and a URL", nil)
	}
	dest := filepath.Join(d.cacheDir, asset.Name)
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		logger.Debug("asset already cached",
			logger.String("name", asset.Name), logger.String("path", dest))
		return dest, nil
	}

	if err := os.MkdirAll(d.cacheDir, 0o755); err != nil {
		return "", types.NewAppError(types.ErrResource, "cannot create asset cache directory", err)
	}

	logger.Info("downloading asset",
		logger.String("name", asset.Name), logger.String("url", asset.URL))
	if err := d.downloadWithRetry(ctx, asset, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// EnsureAll fetches every asset and returns their paths keyed by name.
func (d *AssetDownloader) EnsureAll(ctx context.Context, assets []Asset) (map[string]string, error) {
	paths := make(map[string]string, len(assets))
	for _, a := range assets {
		p, err := d.Ensure(ctx, a)
		if err != nil {
			return nil, err
		}
		paths[a.Name] = p
	}
	return paths, nil
}

func (d *AssetDownloader) downloadWithRetry(ctx context.Context, asset Asset, dest string) error {
	var lastErr error
	for attempt := 1; attempt <= MaxRetries; attempt++ {
		if attempt > 1 {
			delay := BaseRetryDelay * time.Duration(attempt-1)
			logger.Warn("retrying asset download", lastErr,
				logger.String("name", asset.Name), logger.Int("attempt", attempt))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return types.NewAppError(types.ErrNetwork, "download cancelled", ctx.Err())
			}
		}
		lastErr = d.downloadOnce(ctx, asset, dest)
		if lastErr == nil {
			return nil
		}
	}
	return types.NewAppErrorWithDetails(types.ErrDownload, "asset download failed",
		asset.URL, lastErr)
}

// downloadOnce streams the asset into a temp file next to dest and renames
// it into place, so a partial download never shadows a good copy.
func (d *AssetDownloader) downloadOnce(ctx context.Context, asset Asset, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.URL, nil)
	if err != nil {
		return types.NewAppError(types.ErrInvalidInput, "invalid asset URL", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return types.NewAppError(types.ErrNetwork, "asset request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return types.NewAppError(types.ErrDownload,
			fmt.Sprintf("server returned %s", resp.Status), nil)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return types.NewAppError(types.ErrResource, "cannot create temp file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), &progressReader{
		r:     resp.Body,
		name:  asset.Name,
		total: resp.ContentLength,
		fn:    d.progress,
	})
	closeErr := tmp.Close()
	if err != nil {
		return types.NewAppError(types.ErrNetwork, "download interrupted", err)
	}
	if closeErr != nil {
		return types.NewAppError(types.ErrResource, "cannot finish temp file", closeErr)
	}
	if written == 0 {
		return types.NewAppError(types.ErrDownload, "server returned an empty file", nil)
	}

	if asset.SHA256 != "" {
		sum := hex.EncodeToString(hasher.Sum(nil))
		if sum != asset.SHA256 {
			return types.NewAppErrorWithDetails(types.ErrDownload, "asset checksum mismatch",
				fmt.Sprintf("want %s got %s", asset.SHA256, sum), nil)
		}
	}

	if err := os.Rename(tmpName, dest); err != nil {
		return types.NewAppError(types.ErrResource, "cannot move asset into cache", err)
	}
	logger.Info("asset downloaded",
		logger.String("name", asset.Name), logger.Int64("bytes", written))
	return nil
}

type progressReader struct {
	r        io.Reader
	name     string
	total    int64
	received int64
	fn       ProgressFunc
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.received += int64(n)
		if p.fn != nil {
			p.fn(p.name, p.received, p.total)
		}
	}
	return n, err
}
