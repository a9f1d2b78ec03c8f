package directory

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/gjson"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	maxBodySize      = 32 << 20
)

// Config is threaded into the Fetcher at construction; nothing here is
// read from process-wide state.
type Config struct {
	CacheDir    string
	CacheTTL    time.Duration
	Proxy       string
	Retries     int
	Backoff     time.Duration
	HTTPTimeout time.Duration
	InsecureTLS bool
	UserAgent   string
}

// Fetcher downloads JSON documents, retrying failures and caching successful
// bodies on disk.
type Fetcher struct {
	cfg    Config
	client *http.Client
	logger Logger
	now    func() time.Time
}

func NewFetcher(cfg Config, logger Logger) (*Fetcher, error) {
	if cfg.Retries <= 0 {
		cfg.Retries = 1
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if logger == nil {
		logger = nopLogger{}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyFromEnvironment
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Fetcher{
		cfg:    cfg,
		client: &http.Client{Transport: transport, Timeout: cfg.HTTPTimeout},
		logger: logger,
		now:    time.Now,
	}, nil
}

// Fetch returns the JSON body at rawURL, from the disk cache when a fresh
// copy exists.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	cachePath := f.cachePath(rawURL)
	if body, ok := f.readCache(cachePath); ok {
		f.logger.Debugf("using cached copy of %s", rawURL)
		return body, nil
	}

	var lastErr error
	for attempt := 1; attempt <= f.cfg.Retries; attempt++ {
		body, err := f.download(ctx, rawURL)
		if err == nil {
			f.writeCache(cachePath, body)
			return body, nil
		}
		lastErr = err
		f.logger.Warnf("fetch %s attempt %d/%d: %s", rawURL, attempt, f.cfg.Retries, err)

		if attempt == f.cfg.Retries {
			break
		}
		timer := time.NewTimer(f.cfg.Backoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("fetch %s: %w", rawURL, lastErr)
}

func (f *Fetcher) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %s", resp.Status)
	}

	doc := gjson.ParseBytes(body)
	if !gjson.ValidBytes(body) || !(doc.IsArray() || doc.IsObject()) {
		return nil, errors.New("response is not a json object or array")
	}

	return body, nil
}

func (f *Fetcher) cachePath(rawURL string) string {
	if f.cfg.CacheDir == "" {
		return ""
	}
	return filepath.Join(f.cfg.CacheDir, base64.URLEncoding.EncodeToString([]byte(rawURL))+".json")
}

func (f *Fetcher) readCache(path string) ([]byte, bool) {
	if path == "" || f.cfg.CacheTTL <= 0 {
		return nil, false
	}

	st, err := os.Stat(path)
	if err != nil || f.now().Sub(st.ModTime()) >= f.cfg.CacheTTL {
		return nil, false
	}

	body, err := os.ReadFile(path)
	if err != nil || !gjson.ValidBytes(body) {
		return nil, false
	}

	return body, true
}

func (f *Fetcher) writeCache(path string, body []byte) {
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		f.logger.Warnf("create cache dir: %s", err)
		return
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		f.logger.Warnf("write cache %s: %s", path, err)
	}
}
