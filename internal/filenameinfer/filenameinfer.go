// Package filenameinfer determines a destination filename when a caller's
// dest names a directory rather than a file, per SPEC_FULL.md §12's
// supplemented "destination is a directory" feature.
package filenameinfer

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/h2non/filetype"
	"github.com/vfaronov/httpheader"
)

// Infer derives a filename from, in priority order: the response's
// Content-Disposition header, the request URL's path, and finally a
// sniffed-magic-bytes extension with a generic fallback name. resp.Body,
// if non-nil, may be read (up to 512 bytes) for magic-byte sniffing; those
// bytes are not put back, so a caller that still needs the full body should
// use InferWithBody.
func Infer(rawURL string, resp *http.Response) string {
	name, _ := InferWithBody(rawURL, resp)
	return name
}

// InferWithBody behaves like Infer but also returns a replacement body
// reader when resp.Body was consumed for magic-byte sniffing. Callers that
// hold resp from a real GET and go on to save its body should use this and
// read from the returned reader instead of resp.Body directly.
func InferWithBody(rawURL string, resp *http.Response) (string, io.Reader) {
	var body io.Reader
	if resp != nil {
		body = resp.Body
	}

	if resp != nil {
		if _, cdName, err := httpheader.ContentDisposition(resp.Header); err == nil && cdName != "" {
			if clean := sanitize(cdName); clean != "" {
				return ensureExtension(clean, resp, &body), body
			}
		}
	}

	candidate := ""
	if u, err := url.Parse(rawURL); err == nil {
		base := path.Base(u.Path)
		if base != "" && base != "." && base != "/" {
			candidate = sanitize(base)
		}
	}
	if candidate == "" {
		candidate = "download"
	}

	return ensureExtension(candidate, resp, &body), body
}

// ensureExtension appends a magic-byte-sniffed extension if candidate has
// none, peeking resp.Body (if present) and updating *body to a
// reconstructed stream so no bytes are lost for the eventual real read.
func ensureExtension(candidate string, resp *http.Response, body *io.Reader) string {
	if path.Ext(candidate) != "" {
		return candidate
	}
	if resp == nil || resp.Body == nil {
		return candidate
	}

	peek := make([]byte, 512)
	n, _ := io.ReadFull(resp.Body, peek)
	peek = peek[:n]
	*body = io.MultiReader(bytes.NewReader(peek), resp.Body)

	if kind, _ := filetype.Match(peek); kind != filetype.Unknown && kind.Extension != "" {
		return candidate + "." + kind.Extension
	}
	return candidate
}

// sanitize strips path separators and traversal sequences so a hostile
// Content-Disposition/URL can't write outside the intended directory.
func sanitize(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimPrefix(name, ".")
	if name == "" || name == "." || name == ".." {
		return ""
	}
	return name
}
