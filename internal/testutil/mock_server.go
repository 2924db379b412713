package testutil

import (
	"crypto/rand"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// listenLoopbackT binds a TCP listener on the loopback interface, preferring
// IPv4 since sandboxed CI runners sometimes lack IPv6 loopback, but falling
// back to whatever the platform gives "localhost:0" before skipping the
// test outright.
func listenLoopbackT(t *testing.T) net.Listener {
	t.Helper()
	if ln, err := net.Listen("tcp4", "127.0.0.1:0"); err == nil {
		return ln
	}
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Skipf("loopback listener unavailable: %v", err)
		return nil
	}
	return ln
}

func newTestServerT(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	ln := listenLoopbackT(t)
	if ln == nil {
		return nil
	}
	srv := &httptest.Server{
		Listener: ln,
		Config:   &http.Server{Handler: handler},
	}
	srv.Start()
	return srv
}

// MockServer is a configurable HTTP server standing in for a download
// origin: it can serve a fixed-size payload with or without Range support,
// inject latency, and fail after a configured number of served bytes or on
// a configured request number.
type MockServer struct {
	Server *httptest.Server

	FileSize       int64
	SupportsRanges bool
	Filename       string
	RandomData     bool
	Latency        time.Duration
	ByteLatency    time.Duration
	FailAfterBytes int64
	FailOnNthReq   int
	RateLimitAfter int // return 429 on exactly this request number (0 = never)

	RequestCount  atomic.Int64
	BytesServed   atomic.Int64
	RangeRequests atomic.Int64

	reqNumMu sync.Mutex
	reqNum   int

	data []byte
}

// MockServerOption configures a MockServer before it starts listening.
type MockServerOption func(*MockServer)

func WithFileSize(size int64) MockServerOption {
	return func(m *MockServer) { m.FileSize = size }
}

func WithRangeSupport(enabled bool) MockServerOption {
	return func(m *MockServer) { m.SupportsRanges = enabled }
}

func WithFilename(name string) MockServerOption {
	return func(m *MockServer) { m.Filename = name }
}

func WithRandomData(random bool) MockServerOption {
	return func(m *MockServer) { m.RandomData = random }
}

func WithLatency(d time.Duration) MockServerOption {
	return func(m *MockServer) { m.Latency = d }
}

func WithByteLatency(d time.Duration) MockServerOption {
	return func(m *MockServer) { m.ByteLatency = d }
}

func WithFailAfterBytes(n int64) MockServerOption {
	return func(m *MockServer) { m.FailAfterBytes = n }
}

func WithFailOnNthRequest(n int) MockServerOption {
	return func(m *MockServer) { m.FailOnNthReq = n }
}

func WithRateLimitAfter(n int) MockServerOption {
	return func(m *MockServer) { m.RateLimitAfter = n }
}

// NewMockServerT creates and starts a MockServer, skipping the test if the
// listener can't bind.
func NewMockServerT(t *testing.T, opts ...MockServerOption) *MockServer {
	t.Helper()
	m := &MockServer{
		FileSize:       1024 * 1024,
		SupportsRanges: true,
		Filename:       "testfile.bin",
	}
	for _, opt := range opts {
		opt(m)
	}
	m.data = make([]byte, m.FileSize)
	if m.RandomData {
		_, _ = rand.Read(m.data)
	}
	m.Server = newTestServerT(t, http.HandlerFunc(m.handle))
	return m
}

func (m *MockServer) URL() string { return m.Server.URL }
func (m *MockServer) Close()      { m.Server.Close() }

type Stats struct {
	TotalRequests int64
	BytesServed   int64
	RangeRequests int64
}

func (m *MockServer) Stats() Stats {
	return Stats{
		TotalRequests: m.RequestCount.Load(),
		BytesServed:   m.BytesServed.Load(),
		RangeRequests: m.RangeRequests.Load(),
	}
}

func (m *MockServer) handle(w http.ResponseWriter, r *http.Request) {
	m.RequestCount.Add(1)

	m.reqNumMu.Lock()
	m.reqNum++
	reqNum := m.reqNum
	m.reqNumMu.Unlock()

	if m.FailOnNthReq > 0 && reqNum == m.FailOnNthReq {
		http.Error(w, "simulated failure", http.StatusInternalServerError)
		return
	}
	if m.RateLimitAfter > 0 && reqNum == m.RateLimitAfter {
		w.Header().Set("Retry-After", "0")
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}
	if m.Latency > 0 {
		time.Sleep(m.Latency)
	}

	if r.Method == http.MethodHead {
		m.setHeaders(w, 0, m.FileSize-1)
		if m.SupportsRanges {
			w.Header().Set("Accept-Ranges", "bytes")
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	start, end := int64(0), m.FileSize-1
	rangeHeader := r.Header.Get("Range")
	if rangeHeader != "" && m.SupportsRanges {
		m.RangeRequests.Add(1)
		var err error
		start, end, err = parseRange(rangeHeader, m.FileSize)
		if err != nil {
			http.Error(w, "invalid range", http.StatusRequestedRangeNotSatisfiable)
			return
		}
		m.setHeaders(w, start, end)
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, m.FileSize))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		m.setHeaders(w, 0, m.FileSize-1)
		if m.SupportsRanges {
			w.Header().Set("Accept-Ranges", "bytes")
		}
		w.WriteHeader(http.StatusOK)
	}

	length := end - start + 1
	var written int64
	chunkSize := int64(32 * 1024)
	for written < length {
		if m.FailAfterBytes > 0 && written >= m.FailAfterBytes {
			return
		}
		remaining := length - written
		if remaining < chunkSize {
			chunkSize = remaining
		}
		if m.FailAfterBytes > 0 && written+chunkSize > m.FailAfterBytes {
			chunkSize = m.FailAfterBytes - written
		}
		from := start + written
		to := from + chunkSize
		if to > m.FileSize {
			to = m.FileSize
		}
		n, err := w.Write(m.data[from:to])
		if err != nil {
			return
		}
		written += int64(n)
		m.BytesServed.Add(int64(n))
		if m.ByteLatency > 0 {
			time.Sleep(m.ByteLatency * time.Duration(n))
		}
	}
}

func (m *MockServer) setHeaders(w http.ResponseWriter, start, end int64) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	if m.Filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, m.Filename))
	}
}

// parseRange parses a "bytes=start-end" / "bytes=start-" / "bytes=-suffix"
// Range header value against fileSize.
func parseRange(rangeHeader string, fileSize int64) (int64, int64, error) {
	if !strings.HasPrefix(rangeHeader, "bytes=") {
		return 0, 0, fmt.Errorf("invalid range prefix")
	}
	spec := strings.TrimPrefix(rangeHeader, "bytes=")
	parts := strings.Split(spec, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid range format")
	}

	var start, end int64
	var err error
	if parts[0] == "" {
		end = fileSize - 1
		start, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, err
		}
		start = fileSize - start
	} else {
		start, err = strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return 0, 0, err
		}
		if parts[1] == "" {
			end = fileSize - 1
		} else {
			end, err = strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return 0, 0, err
			}
		}
	}
	if start < 0 || end >= fileSize || start > end {
		return 0, 0, fmt.Errorf("range out of bounds")
	}
	return start, end, nil
}
