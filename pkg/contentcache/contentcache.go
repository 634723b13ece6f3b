// Package contentcache downloads page content at a bounded rate and keeps
// it in a filesystem cache and an in-memory memo.
package contentcache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmylchreest/tagmend/internal/logger"
	"github.com/jmylchreest/tagmend/pkg/calccache"
	"github.com/jmylchreest/tagmend/pkg/fetcher"
)

// CurrentVersion is part of every cache file name. Bump it to invalidate
// existing cache files.
const CurrentVersion = 1

// Config holds configuration for the content cache.
type Config struct {
	// Dir holds the cache files. Created on first use.
	Dir string `mapstructure:"dir" yaml:"dir"`

	// Version overrides CurrentVersion in file names.
	Version int `mapstructure:"version" yaml:"version"`

	Throttle ThrottleConfig `mapstructure:"throttle" yaml:"throttle"`

	// Fetch is passed to the fetcher on every download.
	Fetch fetcher.Options `mapstructure:"-" yaml:"-"`
}

// Service loads URL content through the memo, the filesystem cache and
// finally a throttled download. It implements calccache.Toggle.
type Service struct {
	config   Config
	fetcher  fetcher.Fetcher
	throttle *Throttle
	memo     *calccache.Cache[string]
}

var _ calccache.Toggle = (*Service)(nil)

// New creates a content cache backed by f. A nil fetcher uses the static
// fetcher with default settings.
func New(cfg Config, f fetcher.Fetcher) *Service {
	if cfg.Dir == "" {
		cfg.Dir = filepath.Join(os.TempDir(), "tagmend-cache")
	}
	if cfg.Version <= 0 {
		cfg.Version = CurrentVersion
	}
	if f == nil {
		f = fetcher.NewStatic(fetcher.DefaultStaticConfig())
	}
	return &Service{
		config:   cfg,
		fetcher:  f,
		throttle: NewThrottle(cfg.Throttle),
		memo:     calccache.New[string](true),
	}
}

// LoadContent returns the content of url. Cache files are trimmed on read;
// fresh downloads are returned as received. Concurrent calls for the same
// url share one download, which is not cancelled when one caller's ctx is;
// ctx bounds how long this caller waits.
func (s *Service) LoadContent(ctx context.Context, url string) (string, error) {
	key := cacheKey(url)
	return s.memo.GetContext(ctx, key, func(ctx context.Context) (string, error) {
		return s.load(ctx, url, key)
	})
}

func (s *Service) load(ctx context.Context, url, key string) (string, error) {
	log := logger.With("url", url)

	if err := os.MkdirAll(s.config.Dir, 0o750); err != nil {
		log.Warn("cache dir could not be created", "dir", s.config.Dir, "error", err)
	}

	path := s.path(key)
	if data, err := os.ReadFile(path); err == nil {
		log.Debug("cache hit", "file", path)
		return strings.TrimSpace(string(data)), nil
	}
	log.Debug("cache miss", "file", path)

	if err := s.throttle.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for download slot: %w", err)
	}
	content, err := s.fetcher.Fetch(ctx, url, s.config.Fetch)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", url, err)
	}

	if err := os.WriteFile(path, []byte(content.Body), 0o640); err != nil {
		log.Warn("could not write cache file", "file", path, "error", err)
	} else {
		log.Debug("cache file written", "file", path, "bytes", len(content.Body))
	}
	return content.Body, nil
}

// CachePath returns the cache file used for url.
func (s *Service) CachePath(url string) string {
	return s.path(cacheKey(url))
}

func (s *Service) path(key string) string {
	return filepath.Join(s.config.Dir, fmt.Sprintf("%s_%d.cache", key, s.config.Version))
}

// SetEnabled switches the in-memory memo. The filesystem cache is always used.
func (s *Service) SetEnabled(enabled bool) {
	s.memo.SetEnabled(enabled)
}

// Enabled reports whether the in-memory memo is on.
func (s *Service) Enabled() bool {
	return s.memo.Enabled()
}

// Close releases the fetcher.
func (s *Service) Close() error {
	return s.fetcher.Close()
}

func cacheKey(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}
