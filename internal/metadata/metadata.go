// Package metadata fetches and interprets the HLS release manifest, which
// maps each server version to the compiler versions it supports per
// architecture and platform.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"

	"hlsup/internal/fetch"
	"hlsup/internal/logx"
)

const (
	DefaultURL    = "https://raw.githubusercontent.com/haskell/ghcup-metadata/master/hls-metadata-0.0.1.json"
	CacheFileName = "ghcupReleases.cache.json"
)

// PlatformTable lists supported compiler versions per platform.
type PlatformTable map[Platform][]string

// ArchTable holds the platform tables per architecture.
type ArchTable map[Arch]PlatformTable

// ReleaseMetadata maps a server version to its architecture table.
type ReleaseMetadata map[string]ArchTable

// Parse validates and decodes a manifest. Any value of the wrong shape is
// reported with its path.
func Parse(data []byte) (ReleaseMetadata, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("release metadata: invalid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("release metadata: expected object at top level, got %s", root.Type)
	}

	md := ReleaseMetadata{}
	var parseErr error
	root.ForEach(func(hlsKey, archs gjson.Result) bool {
		hls := hlsKey.String()
		if !archs.IsObject() {
			parseErr = fmt.Errorf("release metadata: %s: expected object of architectures, got %s", hls, archs.Type)
			return false
		}
		table := ArchTable{}
		archs.ForEach(func(archKey, platforms gjson.Result) bool {
			arch := archKey.String()
			if !platforms.IsObject() {
				parseErr = fmt.Errorf("release metadata: %s.%s: expected object of platforms, got %s", hls, arch, platforms.Type)
				return false
			}
			pt := PlatformTable{}
			platforms.ForEach(func(platKey, ghcs gjson.Result) bool {
				plat := platKey.String()
				if !ghcs.IsArray() {
					parseErr = fmt.Errorf("release metadata: %s.%s.%s: expected array of versions, got %s", hls, arch, plat, ghcs.Type)
					return false
				}
				versions := []string{}
				for i, v := range ghcs.Array() {
					if v.Type != gjson.String {
						parseErr = fmt.Errorf("release metadata: %s.%s.%s[%d]: expected string, got %s", hls, arch, plat, i, v.Type)
						return false
					}
					versions = append(versions, v.String())
				}
				pt[Platform(plat)] = versions
				return true
			})
			if parseErr != nil {
				return false
			}
			table[Arch(arch)] = pt
			return true
		})
		if parseErr != nil {
			return false
		}
		md[hls] = table
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return md, nil
}

// Fetcher abstracts the HTTP client for tests.
type Fetcher interface {
	GetText(ctx context.Context, req fetch.Request) (string, error)
}

// Client fetches the manifest and maintains its on-disk cache.
type Client struct {
	URL    string
	HTTP   Fetcher
	Logger logx.Logger
}

// CachePath returns the cache file location inside storagePath.
func CachePath(storagePath string) string {
	return filepath.Join(storagePath, CacheFileName)
}

// Retrieved is the outcome of Retrieve. FetchErr is set when the network
// fetch failed and Metadata came from the cache instead.
type Retrieved struct {
	Metadata ReleaseMetadata
	FetchErr error
}

// Stale reports whether the metadata came from the cache.
func (r Retrieved) Stale() bool { return r.FetchErr != nil }

// Fetch is Retrieve without the staleness detail.
func (c *Client) Fetch(ctx context.Context, storagePath string) (ReleaseMetadata, error) {
	r, err := c.Retrieve(ctx, storagePath)
	return r.Metadata, err
}

// Retrieve downloads the manifest and overwrites the cache in storagePath.
// When the network fetch fails the cached copy is returned instead, with a
// warning and the network error in FetchErr. If the cache cannot be read
// either, the error names both failures.
func (c *Client) Retrieve(ctx context.Context, storagePath string) (Retrieved, error) {
	logger := logx.OrNop(c.Logger)
	url := c.URL
	if url == "" {
		url = DefaultURL
	}
	cachePath := CachePath(storagePath)

	md, netErr := c.fetchRemote(ctx, url)
	if netErr == nil {
		if err := writeCache(cachePath, md.raw); err != nil {
			logger.Warnf("could not write release metadata cache %s: %v", cachePath, err)
		}
		return Retrieved{Metadata: md.parsed}, nil
	}

	cached, cacheErr := readCache(cachePath)
	if cacheErr != nil {
		return Retrieved{}, fmt.Errorf("fetch release metadata: %w", errors.Join(netErr, fmt.Errorf("read cache %s: %w", cachePath, cacheErr)))
	}
	logger.Warnf("Couldn't get the latest release metadata (%v), falling back to the cache at %s", netErr, cachePath)
	return Retrieved{Metadata: cached, FetchErr: netErr}, nil
}

type fetched struct {
	raw    []byte
	parsed ReleaseMetadata
}

func (c *Client) fetchRemote(ctx context.Context, url string) (fetched, error) {
	if c.HTTP == nil {
		return fetched{}, errors.New("no HTTP client configured")
	}
	body, err := c.HTTP.GetText(ctx, fetch.Request{URL: url, Headers: map[string]string{"Accept": "application/json"}})
	if err != nil {
		return fetched{}, err
	}
	md, err := Parse([]byte(body))
	if err != nil {
		return fetched{}, err
	}
	return fetched{raw: []byte(body), parsed: md}, nil
}

func readCache(path string) (ReleaseMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func writeCache(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("prepare cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "ghcupReleases-*.json")
	if err != nil {
		return fmt.Errorf("create temp cache: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace cache: %w", err)
	}
	return nil
}

// SupportedHLSPerGHC projects md onto one platform and architecture: each
// server version released for that pair maps to its compiler list exactly as
// listed. Versions without a build for the pair are left out.
func SupportedHLSPerGHC(platform Platform, arch Arch, md ReleaseMetadata) map[string][]string {
	out := make(map[string][]string, len(md))
	for hls, archs := range md {
		platforms, ok := archs[arch]
		if !ok {
			continue
		}
		ghcs, ok := platforms[platform]
		if !ok {
			continue
		}
		out[hls] = ghcs
	}
	return out
}

// ServersSupporting returns the server versions in supported whose compiler
// list contains ghc.
func ServersSupporting(supported map[string][]string, ghc string) map[string][]string {
	out := map[string][]string{}
	for hls, ghcs := range supported {
		for _, g := range ghcs {
			if g == ghc {
				out[hls] = ghcs
				break
			}
		}
	}
	return out
}
