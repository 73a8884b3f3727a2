package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"hlsup/internal/fetch"
)

const sampleManifest = `{
  "1.8.0.0": {
    "A_64": {
      "Linux_UnknownLinux": ["9.4.2", "9.2.5", "9.0.2", "8.10.7"],
      "Darwin": ["9.2.5", "8.10.7"]
    },
    "A_ARM64": {
      "Darwin": ["9.2.5"]
    }
  },
  "1.9.0.0": {
    "A_64": {
      "Linux_UnknownLinux": ["9.4.4", "9.2.7"]
    }
  },
  "1.7.0.0": {
    "A_32": {
      "Linux_UnknownLinux": ["8.10.7"]
    }
  }
}`

type fakeFetcher struct {
	body string
	err  error
	urls []string
}

func (f *fakeFetcher) GetText(_ context.Context, req fetch.Request) (string, error) {
	f.urls = append(f.urls, req.URL)
	return f.body, f.err
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Debugf(string, ...any) {}
func (l *recordingLogger) Infof(string, ...any)  {}
func (l *recordingLogger) Errorf(string, ...any) {}
func (l *recordingLogger) Warnf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprintf(format, args...))
}

func TestParse(t *testing.T) {
	md, err := Parse([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := PlatformTable{
		PlatformLinux:  {"9.4.2", "9.2.5", "9.0.2", "8.10.7"},
		PlatformDarwin: {"9.2.5", "8.10.7"},
	}
	if diff := cmp.Diff(want, md["1.8.0.0"][ArchX86_64]); diff != "" {
		t.Fatalf("1.8.0.0/A_64 mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRejectsWrongShape(t *testing.T) {
	tests := map[string]string{
		"not json":         `{`,
		"top level array":  `[]`,
		"arch not object":  `{"1.8.0.0": []}`,
		"plat not object":  `{"1.8.0.0": {"A_64": "x"}}`,
		"versions not arr": `{"1.8.0.0": {"A_64": {"Darwin": "9.2.5"}}}`,
		"version not str":  `{"1.8.0.0": {"A_64": {"Darwin": [9.2]}}}`,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(input)); err == nil {
				t.Fatalf("expected error for %s", input)
			}
		})
	}

	_, err := Parse([]byte(`{"1.8.0.0": {"A_64": {"Darwin": [1]}}}`))
	if err == nil || !strings.Contains(err.Error(), "1.8.0.0.A_64.Darwin[0]") {
		t.Fatalf("expected path in error, got %v", err)
	}
}

func TestFetchWritesCache(t *testing.T) {
	dir := t.TempDir()
	f := &fakeFetcher{body: sampleManifest}
	c := &Client{URL: "https://example.invalid/hls.json", HTTP: f}

	md, err := c.Fetch(context.Background(), dir)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(md) != 3 {
		t.Fatalf("expected 3 server versions, got %d", len(md))
	}
	if diff := cmp.Diff([]string{"https://example.invalid/hls.json"}, f.urls); diff != "" {
		t.Fatalf("url mismatch:\n%s", diff)
	}
	cached, err := os.ReadFile(filepath.Join(dir, CacheFileName))
	if err != nil {
		t.Fatalf("read cache: %v", err)
	}
	if string(cached) != sampleManifest {
		t.Fatal("expected cache to hold the manifest verbatim")
	}
}

func TestFetchDefaultsURL(t *testing.T) {
	f := &fakeFetcher{body: `{}`}
	c := &Client{HTTP: f}
	if _, err := c.Fetch(context.Background(), t.TempDir()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(f.urls) != 1 || f.urls[0] != DefaultURL {
		t.Fatalf("expected default url, got %v", f.urls)
	}
}

func TestFetchFallsBackToCache(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, CacheFileName), []byte(sampleManifest), 0o644); err != nil {
		t.Fatal(err)
	}
	logger := &recordingLogger{}
	c := &Client{HTTP: &fakeFetcher{err: errors.New("dial tcp: no route to host")}, Logger: logger}

	md, err := c.Fetch(context.Background(), dir)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	want, _ := Parse([]byte(sampleManifest))
	if diff := cmp.Diff(want, md); diff != "" {
		t.Fatalf("cached metadata mismatch (-want +got):\n%s", diff)
	}
	if len(logger.warns) != 1 {
		t.Fatalf("expected exactly one warning, got %v", logger.warns)
	}
}

func TestFetchFailsWithoutCache(t *testing.T) {
	netErr := errors.New("dial tcp: no route to host")
	c := &Client{HTTP: &fakeFetcher{err: netErr}}

	_, err := c.Fetch(context.Background(), t.TempDir())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, netErr) {
		t.Fatalf("expected network error in chain, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected cache error in chain, got %v", err)
	}
}

func TestFetchBadRemoteFallsBackToCache(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, CacheFileName), []byte(sampleManifest), 0o644); err != nil {
		t.Fatal(err)
	}
	c := &Client{HTTP: &fakeFetcher{body: `{"1.8.0.0": 3}`}}
	md, err := c.Fetch(context.Background(), dir)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if _, ok := md["1.9.0.0"]; !ok {
		t.Fatal("expected cached metadata")
	}
}

func TestSupportedHLSPerGHC(t *testing.T) {
	md, err := Parse([]byte(sampleManifest))
	if err != nil {
		t.Fatal(err)
	}

	got := SupportedHLSPerGHC(PlatformLinux, ArchX86_64, md)
	want := map[string][]string{
		"1.8.0.0": {"9.4.2", "9.2.5", "9.0.2", "8.10.7"},
		"1.9.0.0": {"9.4.4", "9.2.7"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("linux/x86_64 mismatch (-want +got):\n%s", diff)
	}

	got = SupportedHLSPerGHC(PlatformDarwin, ArchARM64, md)
	want = map[string][]string{"1.8.0.0": {"9.2.5"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("darwin/arm64 mismatch (-want +got):\n%s", diff)
	}

	if got := SupportedHLSPerGHC(PlatformWindows, ArchX86_64, md); len(got) != 0 {
		t.Fatalf("expected no windows releases, got %v", got)
	}
}

func TestServersSupporting(t *testing.T) {
	supported := map[string][]string{
		"1.8.0.0": {"9.4.2", "9.2.5"},
		"1.9.0.0": {"9.4.4"},
	}
	got := ServersSupporting(supported, "9.2.5")
	if diff := cmp.Diff(map[string][]string{"1.8.0.0": {"9.4.2", "9.2.5"}}, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestHostLabels(t *testing.T) {
	for goos, want := range map[string]Platform{"darwin": PlatformDarwin, "freebsd": PlatformFreeBSD, "linux": PlatformLinux, "windows": PlatformWindows} {
		got, err := PlatformFor(goos)
		if err != nil || got != want {
			t.Errorf("PlatformFor(%q) = %q, %v", goos, got, err)
		}
	}
	for goarch, want := range map[string]Arch{"amd64": ArchX86_64, "386": ArchX86, "arm64": ArchARM64, "arm": ArchARM} {
		got, err := ArchFor(goarch)
		if err != nil || got != want {
			t.Errorf("ArchFor(%q) = %q, %v", goarch, got, err)
		}
	}
	if _, err := PlatformFor("plan9"); err == nil {
		t.Error("expected error for unsupported platform")
	}
	if _, err := ArchFor("riscv64"); err == nil {
		t.Error("expected error for unsupported architecture")
	}
}

func TestRetrieveMarksCacheFallbackStale(t *testing.T) {
	dir := t.TempDir()
	netErr := errors.New("dial tcp: no route to host")
	if err := os.WriteFile(filepath.Join(dir, CacheFileName), []byte(sampleManifest), 0o644); err != nil {
		t.Fatal(err)
	}

	fresh, err := (&Client{HTTP: &fakeFetcher{body: sampleManifest}}).Retrieve(context.Background(), dir)
	if err != nil || fresh.Stale() {
		t.Fatalf("network fetch: stale=%v err=%v", fresh.Stale(), err)
	}

	stale, err := (&Client{HTTP: &fakeFetcher{err: netErr}}).Retrieve(context.Background(), dir)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !stale.Stale() || !errors.Is(stale.FetchErr, netErr) {
		t.Fatalf("cache fallback: stale=%v fetchErr=%v", stale.Stale(), stale.FetchErr)
	}
	if len(stale.Metadata) == 0 {
		t.Fatal("expected cached metadata")
	}
}
