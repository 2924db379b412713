package transfer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rivermoor/surge/internal/engineconfig"
	"github.com/rivermoor/surge/internal/surgeerr"
	"github.com/vfaronov/httpheader"
)

// Engine runs one task's transfer to completion, in either chunked or
// streaming mode depending on what the origin's classification probe
// reports. One Engine instance is reused across tasks; it holds no
// per-task state.
type Engine struct{}

// New returns a ready-to-use Engine.
func New() *Engine { return &Engine{} }

// classification is the outcome of the HEAD probe that decides whether a
// transfer can be chunked.
type classification struct {
	chunked   bool
	totalSize int64 // valid only if chunked
}

// classify issues a HEAD request and decides chunked vs streaming mode:
// streaming unless both Content-Length is present/numeric and
// Accept-Ranges contains "bytes".
func classify(ctx context.Context, client *http.Client, rawURL string, headers map[string]string, userAgent string) (classification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return classification{}, surgeerr.New(surgeerr.HTTP, "building HEAD request", err)
	}
	injectHeaders(req, headers, userAgent, "")

	resp, err := client.Do(req)
	if err != nil {
		return classification{}, surgeerr.New(surgeerr.HTTP, "HEAD request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return classification{}, surgeerr.New(surgeerr.HTTP, fmt.Sprintf("HEAD returned %d", resp.StatusCode), nil)
	}

	acceptRanges := httpheader.AcceptRanges(resp.Header)
	supportsRangeBytes := false
	for _, r := range acceptRanges {
		if strings.EqualFold(r, "bytes") {
			supportsRangeBytes = true
			break
		}
	}

	cl := resp.Header.Get("Content-Length")
	size, err := strconv.ParseInt(cl, 10, 64)
	if cl == "" || err != nil {
		return classification{chunked: false}, nil
	}
	if !supportsRangeBytes {
		return classification{chunked: false}, nil
	}

	return classification{chunked: true, totalSize: size}, nil
}

// injectHeaders merges caller headers, the configured User-Agent, and an
// optional Range value into req, with Range always winning on conflict.
func injectHeaders(req *http.Request, extra map[string]string, userAgent, rangeHeader string) {
	for k, v := range extra {
		req.Header.Set(k, v)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
}

// newHTTPClient builds a transport tuned for many concurrent connections
// to the same host, forcing HTTP/1.1 so parallel ranged GETs use distinct
// TCP connections instead of being multiplexed over one HTTP/2 stream.
func newHTTPClient(cfg *engineconfig.RuntimeConfig) *http.Client {
	maxConns := cfg.GetMaxConnectionsPerHost()
	transport := &http.Transport{
		MaxIdleConns:          maxConns * 2,
		MaxIdleConnsPerHost:   maxConns + 2,
		MaxConnsPerHost:       maxConns,
		IdleConnTimeout:       engineconfig.DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   engineconfig.DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.GetRequestTimeout(),
		ExpectContinueTimeout: engineconfig.DefaultExpectContinueTimeout,
		DisableCompression:    true,
		ForceAttemptHTTP2:     false,
		TLSNextProto:          make(map[string]func(string, *tls.Conn) http.RoundTripper),
	}
	return &http.Client{
		Transport: transport,
		Timeout:   0, // RequestTimeout bounds each request's wait for response headers (ResponseHeaderTimeout); reading a body has no deadline
	}
}

// Download runs the transfer to completion, dispatching to chunked or
// streaming mode after classification. deltas receives progress reports
// until Download returns; Download closes nothing on deltas (the caller
// owns the channel's lifetime).
func (e *Engine) Download(ctx context.Context, spec Spec, deltas chan<- Delta) (Result, error) {
	start := time.Now()
	client := newHTTPClient(spec.Runtime)

	class, err := classify(ctx, client, spec.URL, spec.Headers, spec.Runtime.GetUserAgent())
	if err != nil {
		return Result{}, err
	}

	if class.chunked {
		select {
		case deltas <- Delta{Kind: SizeKnown, Bytes: class.totalSize}:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
		if err := runChunked(ctx, client, spec, class.totalSize, deltas); err != nil {
			return Result{}, err
		}
		return Result{TotalSize: class.totalSize, Elapsed: time.Since(start)}, nil
	}

	written, err := runStreaming(ctx, client, spec, deltas)
	if err != nil {
		return Result{}, err
	}
	return Result{TotalSize: written, Elapsed: time.Since(start)}, nil
}
