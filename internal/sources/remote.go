package sources

import (
	"bufio"
	"bytes"
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

	"stemsplit/internal/logging"
	"stemsplit/internal/retry"
	"stemsplit/internal/services"
	"stemsplit/internal/textutil"
)

var (
	zipMagic        = []byte("PK\x03\x04")
	errNotRetryable = errors.New("not retryable")
)

type statusError struct {
	code   int
	status string
}

func (e statusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %s", e.status)
}

// download fetches rawURL into a guarded temp dir. Zip payloads are
// extracted; anything else is treated as a single video.
func (p *Provider) download(ctx context.Context, rawURL string) ([]string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, services.Wrap(services.ErrSourceUnavailable, stageName, "parse url", "expected an http(s) URL: "+rawURL, err)
	}

	dir, err := p.tempDir("download-*")
	if err != nil {
		return nil, err
	}
	name := "download"
	if base := path.Base(parsed.Path); base != "." && base != "/" {
		if clean := textutil.SanitizeFileName(base); clean != "" {
			name = clean
		}
	}
	dest := filepath.Join(dir, name)

	logger := logging.WithContext(ctx, p.logger())
	outcome := p.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		err := p.fetch(ctx, parsed.String(), dest)
		if err != nil {
			logger.Debug("download attempt failed",
				logging.String("url", parsed.Redacted()),
				logging.Int("attempt", attempt),
				logging.Error(err),
			)
		}
		return err
	})
	if outcome.Err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrSourceUnavailable, stageName, "download",
			fmt.Sprintf("%s failed after %d attempt(s)", parsed.Redacted(), outcome.Attempts), outcome.Err)
	}

	isZip, err := hasZipMagic(dest)
	if err != nil {
		return nil, services.Wrap(services.ErrSourceUnavailable, stageName, "inspect download", dest, err)
	}
	if isZip {
		return p.extractArchive(ctx, dest)
	}
	if !p.wanted(dest) {
		return nil, services.Wrap(services.ErrSourceUnavailable, stageName, "inspect download",
			"downloaded file is neither a zip archive nor a supported video", nil)
	}
	return []string{dest}, nil
}

func (p *Provider) fetch(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return statusError{code: resp.StatusCode, status: resp.Status}
	}
	if p.MaxBytes > 0 && resp.ContentLength > p.MaxBytes {
		return fmt.Errorf("download of %d bytes exceeds max_bytes %d: %w", resp.ContentLength, p.MaxBytes, errNotRetryable)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w: %w", dest, err, errNotRetryable)
	}
	reader := io.Reader(resp.Body)
	if p.MaxBytes > 0 {
		reader = io.LimitReader(resp.Body, p.MaxBytes+1)
	}
	n, copyErr := io.Copy(out, reader)
	closeErr := out.Close()
	if copyErr != nil {
		return copyErr
	}
	if closeErr != nil {
		return closeErr
	}
	if p.MaxBytes > 0 && n > p.MaxBytes {
		return fmt.Errorf("download exceeds max_bytes %d: %w", p.MaxBytes, errNotRetryable)
	}
	return nil
}

func hasZipMagic(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	head, err := bufio.NewReader(f).Peek(len(zipMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return bytes.Equal(head, zipMagic), nil
}

// classifyDownload treats 4xx other than 408/429 as permanent. Network
// failures and 5xx are retried.
func classifyDownload(err error) retry.Class {
	if errors.Is(err, errNotRetryable) || errors.Is(err, context.Canceled) {
		return retry.Permanent
	}
	var status statusError
	if errors.As(err, &status) {
		switch {
		case status.code == http.StatusRequestTimeout, status.code == http.StatusTooManyRequests:
			return retry.Transient
		case status.code >= 500:
			return retry.Transient
		default:
			return retry.Permanent
		}
	}
	return retry.Transient
}
