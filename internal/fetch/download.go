package fetch

import (
	"archive/zip"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"hlsup/internal/hlserr"
	"hlsup/internal/progress"
)

type compression int

const (
	compressionNone compression = iota
	compressionGzip
	compressionZip
)

// DownloadToFile downloads src into dest. It reports false without touching
// the network when dest already exists. Concurrent calls for the same src and
// dest share one transfer and observe the same result. Downloads are not
// cancellable: ctx only carries values, its cancellation is ignored.
func (c *Client) DownloadToFile(ctx context.Context, title, src, dest string, sink progress.Sink) (bool, error) {
	if exists(dest) {
		return false, nil
	}

	key := src + "\x00" + dest
	v, err, shared := c.flight.Do(key, func() (any, error) {
		if exists(dest) {
			return false, nil
		}
		if err := c.download(context.WithoutCancel(ctx), title, src, dest, sink); err != nil {
			return false, err
		}
		return true, nil
	})
	if shared {
		c.Logger.Debugf("download of %s to %s shared with a concurrent caller", src, dest)
	}
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (c *Client) download(ctx context.Context, title, src, dest string, sink progress.Sink) (err error) {
	tmp := dest + ".download"
	archive := tmp + ".zip"
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
			_ = os.Remove(archive)
			c.Logger.Errorf("download %s failed: %v", src, err)
			err = &hlserr.NetworkError{URL: src, Err: err}
		}
	}()

	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale download: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("prepare download destination: %w", err)
	}

	c.Logger.Infof("Downloading %s to %s", src, dest)
	resp, err := c.do(ctx, c.HTTP, src, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	total := resp.ContentLength
	if total <= 0 {
		total = 1
	}
	body := &progressReader{r: resp.Body, total: total, title: title, sink: sink, last: -1}

	switch detectCompression(resp.Header.Get("Content-Type"), src) {
	case compressionGzip:
		gz, err := gzip.NewReader(body)
		if err != nil {
			return fmt.Errorf("gzip reader: %w", err)
		}
		defer gz.Close()
		if err := writeFile(tmp, gz); err != nil {
			return err
		}
	case compressionZip:
		if err := writeFile(archive, body); err != nil {
			return err
		}
		if err := extractSingleEntry(archive, tmp); err != nil {
			return err
		}
		if err := os.Remove(archive); err != nil {
			return fmt.Errorf("remove archive: %w", err)
		}
	default:
		if err := writeFile(tmp, body); err != nil {
			return err
		}
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmp, 0o755); err != nil {
			return fmt.Errorf("chmod download: %w", err)
		}
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("finalize download: %w", err)
	}
	progress.Report(sink, progress.Update{Title: title, Message: "downloaded", Percent: 100})
	return nil
}

func detectCompression(contentType, src string) compression {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case "application/gzip", "application/x-gzip":
			return compressionGzip
		case "application/zip", "application/x-zip-compressed":
			return compressionZip
		}
	}
	ext := ""
	if u, err := url.Parse(src); err == nil {
		ext = strings.ToLower(path.Ext(u.Path))
	}
	switch ext {
	case ".gz":
		return compressionGzip
	case ".zip":
		return compressionZip
	}
	return compressionNone
}

func writeFile(dest string, r io.Reader) error {
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dest, err)
	}
	return nil
}

// extractSingleEntry writes the only regular file in a zip archive to dest.
func extractSingleEntry(archivePath, dest string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer reader.Close()

	var entry *zip.File
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if entry != nil {
			return fmt.Errorf("zip archive holds more than one file (%s, %s)", entry.Name, f.Name)
		}
		entry = f
	}
	if entry == nil {
		return errors.New("zip archive is empty")
	}

	rc, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open zip entry %s: %w", entry.Name, err)
	}
	defer rc.Close()
	return writeFile(dest, rc)
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

type progressReader struct {
	r     io.Reader
	read  int64
	total int64
	title string
	sink  progress.Sink
	last  int
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.sink != nil && n > 0 {
		pct := int(p.read * 100 / p.total)
		if pct > 100 {
			pct = 100
		}
		if pct != p.last {
			p.last = pct
			p.sink.Report(progress.Update{
				Title:   p.title,
				Message: fmt.Sprintf("%d/%d bytes", p.read, p.total),
				Percent: float64(pct),
			})
		}
	}
	return n, err
}
