// Package upload posts encoded recordings to the collector.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// HTTPDoer describes the HTTP client used by the uploader.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultChunk is the progress granularity.
const DefaultChunk = 64 << 10

// Client posts recordings as JSON. Relative URLs are resolved against
// BaseURL.
type Client struct {
	BaseURL string
	Chunk   int

	client HTTPDoer
}

// NewClient returns a Client backed by doer, or http.DefaultClient when nil.
func NewClient(doer HTTPDoer) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	return &Client{client: doer, Chunk: DefaultChunk}
}

// Resolve joins a relative url with BaseURL.
func (c *Client) Resolve(url string) string {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return url
	}
	return base + "/" + strings.TrimLeft(url, "/")
}

// Post sends payload and reports the fraction of bytes handed to the
// transport through onProgress. Any non-2xx status is an error.
func (c *Client) Post(ctx context.Context, url string, payload []byte, onProgress func(float64)) error {
	body := &progressReader{r: bytes.NewReader(payload), total: len(payload), chunk: c.Chunk, report: onProgress}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Resolve(url), body)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.ContentLength = int64(len(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post recording: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("upload returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	body.finish()
	return nil
}

type progressReader struct {
	r      *bytes.Reader
	total  int
	chunk  int
	report func(float64)

	mu   sync.Mutex
	sent int
	last float64
}

func (p *progressReader) Read(b []byte) (int, error) {
	if p.chunk > 0 && len(b) > p.chunk {
		b = b[:p.chunk]
	}
	n, err := p.r.Read(b)
	if n > 0 {
		p.mu.Lock()
		p.sent += n
		frac := 1.0
		if p.total > 0 {
			frac = float64(p.sent) / float64(p.total)
		}
		p.emit(frac)
		p.mu.Unlock()
	}
	return n, err
}

// finish reports completion for bodies the transport never read to the end.
func (p *progressReader) finish() {
	p.mu.Lock()
	p.emit(1)
	p.mu.Unlock()
}

func (p *progressReader) emit(frac float64) {
	if p.report == nil || frac <= p.last {
		return
	}
	p.last = frac
	p.report(frac)
}
