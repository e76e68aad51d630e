// Package httpparse implements the incremental HTTP/1.1 request decoder
// described in spec.md §3 ("Request") and §4.D, grounded on
// original_source/src/HttpRequest.cpp's parse state machine.
package httpparse

import (
	"strconv"
	"strings"
)

// ParseState is the decoder's position in the request grammar.
type ParseState int

const (
	StateRequestLine ParseState = iota
	StateHeaders
	StateBody
	StateChunkedSize
	StateChunkedData
	StateChunkedTrailer
	StateComplete
	StateError
)

// Result is the outcome of one Parse call.
type Result int

const (
	Incomplete Result = iota
	Success
	Failed
)

const (
	maxRequestLine = 8192
	maxHeaderLine  = 8192
	maxHeaderCount = 100
)

// allowedMethods mirrors HttpRequest::parseRequestLine's method whitelist
// (spec.md §3: "Method set restricted to {GET, POST, DELETE}").
var allowedMethods = map[string]bool{"GET": true, "POST": true, "DELETE": true}

// BodySizeResolver looks up the ceiling that applies to one request, once
// its method/host/path are known but before any body byte is consumed.
// ok is false when no matching server/location was found, leaving the
// connection-wide default from NewRequest in place.
type BodySizeResolver func(host, method, path string) (maxBodySize int64, ok bool)

// Request accumulates one HTTP request across possibly-many Parse calls,
// reusable in place for keep-alive via Reset.
type Request struct {
	Method      string
	URI         string
	Path        string
	Query       string
	HTTPVersion string

	Headers Header
	Body    []byte

	ContentLength int64
	Chunked       bool

	State         ParseState
	ErrorMessage  string
	ErrorStatus   int

	maxBodySize      int64
	bodySizeResolver BodySizeResolver
	currentChunkSize int64
	currentChunkRead int64
}

// NewRequest returns a Request ready to decode, with the given body size
// ceiling (spec.md §3's per-location client body limit flows in here).
func NewRequest(maxBodySize int64) *Request {
	r := &Request{Headers: Header{}}
	r.maxBodySize = maxBodySize
	r.reset()
	return r
}

// Reset reinitializes the request for reuse on a keep-alive connection,
// grounded on HttpRequest::reset.
func (r *Request) Reset() {
	r.reset()
}

func (r *Request) reset() {
	r.Method, r.URI, r.Path, r.Query, r.HTTPVersion = "", "", "", "", ""
	r.Headers = Header{}
	r.Body = r.Body[:0]
	r.ContentLength = 0
	r.Chunked = false
	r.currentChunkSize = 0
	r.currentChunkRead = 0
	r.State = StateRequestLine
	r.ErrorMessage = ""
	r.ErrorStatus = 0
}

// SetMaxBodySize overrides the body size ceiling, mirroring
// HttpRequest::setMaxBodySize.
func (r *Request) SetMaxBodySize(n int64) {
	r.maxBodySize = n
}

// SetBodySizeResolver installs the callback Parse uses to look up the
// matched location's client_max_body_size ceiling once a request's
// method/host/path are known, replacing the connection-wide default
// NewRequest was built with. Survives Reset, since it's a property of the
// connection the request lives on, not of any one request.
func (r *Request) SetBodySizeResolver(resolver BodySizeResolver) {
	r.bodySizeResolver = resolver
}

// resolveBodySize applies the body size resolver, if one was installed,
// right after headers finish and before any body byte is consumed — the
// only point at which Method/Path/Host are all known but the ceiling has
// not yet been checked against Content-Length or used to bound a chunked
// read.
func (r *Request) resolveBodySize() {
	if r.bodySizeResolver == nil {
		return
	}
	if n, ok := r.bodySizeResolver(r.Host(), r.Method, r.Path); ok {
		r.maxBodySize = n
	}
}

func (r *Request) fail(msg string) Result {
	return r.failWithStatus(400, msg)
}

func (r *Request) failWithStatus(status int, msg string) Result {
	r.State = StateError
	r.ErrorMessage = msg
	r.ErrorStatus = status
	return Failed
}

// Parse feeds data into the state machine starting at offset 0 and returns
// how many bytes it consumed plus the parse result. Unconsumed bytes must
// be retained by the caller and re-presented (with more data appended) on
// the next call — the same pull contract as HttpRequest::parse.
func (r *Request) Parse(data []byte) (bytesConsumed int, result Result) {
	pos := 0

	for pos < len(data) && r.State != StateComplete && r.State != StateError {
		switch r.State {
		case StateRequestLine:
			lineEnd := indexCRLF(data, pos)
			if lineEnd < 0 {
				if len(data)-pos > maxRequestLine {
					return pos, r.fail("request line too long")
				}
				return pos, Incomplete
			}
			if err := r.parseRequestLine(string(data[pos:lineEnd])); err != "" {
				return pos, r.fail(err)
			}
			pos = lineEnd + 2
			r.State = StateHeaders

		case StateHeaders:
			lineEnd := indexCRLF(data, pos)
			if lineEnd < 0 {
				if len(data)-pos > maxHeaderLine {
					return pos, r.fail("header line too long")
				}
				return pos, Incomplete
			}
			line := data[pos:lineEnd]
			pos = lineEnd + 2

			if len(line) == 0 {
				r.resolveBodySize()
				switch {
				case strings.EqualFold(r.Headers.Get("transfer-encoding"), "chunked"):
					r.Chunked = true
					r.State = StateChunkedSize
				case r.ContentLength > 0:
					if r.ContentLength > r.maxBodySize {
						return pos, r.failWithStatus(413, "content-length exceeds maximum body size")
					}
					r.State = StateBody
				default:
					r.State = StateComplete
				}
				continue
			}

			if err := r.parseHeader(string(line)); err != "" {
				return pos, r.fail(err)
			}
			if len(r.Headers) > maxHeaderCount {
				return pos, r.fail("too many headers")
			}

		case StateBody:
			remaining := r.ContentLength - int64(len(r.Body))
			available := int64(len(data) - pos)
			toRead := available
			if remaining < toRead {
				toRead = remaining
			}
			r.Body = append(r.Body, data[pos:pos+int(toRead)]...)
			pos += int(toRead)

			if int64(len(r.Body)) >= r.ContentLength {
				r.State = StateComplete
			} else {
				return pos, Incomplete
			}

		case StateChunkedSize:
			lineEnd := indexCRLF(data, pos)
			if lineEnd < 0 {
				return pos, Incomplete
			}
			line := data[pos:lineEnd]
			pos = lineEnd + 2

			size, err := parseChunkSize(line)
			if err != "" {
				return pos, r.fail(err)
			}
			r.currentChunkSize = size
			if size == 0 {
				r.State = StateChunkedTrailer
			} else {
				r.currentChunkRead = 0
				r.State = StateChunkedData
			}

		case StateChunkedData:
			remaining := r.currentChunkSize - r.currentChunkRead
			available := int64(len(data) - pos)
			toRead := available
			if remaining < toRead {
				toRead = remaining
			}
			r.Body = append(r.Body, data[pos:pos+int(toRead)]...)
			r.currentChunkRead += toRead
			pos += int(toRead)

			if int64(len(r.Body)) > r.maxBodySize {
				return pos, r.failWithStatus(413, "body exceeds maximum size")
			}

			if r.currentChunkRead >= r.currentChunkSize {
				if pos+2 > len(data) {
					return pos, Incomplete
				}
				if data[pos] != '\r' || data[pos+1] != '\n' {
					return pos, r.fail("invalid chunk terminator")
				}
				pos += 2
				r.State = StateChunkedSize
			} else {
				return pos, Incomplete
			}

		case StateChunkedTrailer:
			lineEnd := indexCRLF(data, pos)
			if lineEnd < 0 {
				return pos, Incomplete
			}
			line := data[pos:lineEnd]
			pos = lineEnd + 2
			if len(line) == 0 {
				r.State = StateComplete
			}
			// Trailer headers are read but discarded, as in the original.
		}
	}

	switch r.State {
	case StateComplete:
		return pos, Success
	case StateError:
		return pos, Failed
	default:
		return pos, Incomplete
	}
}

func indexCRLF(data []byte, from int) int {
	for i := from; i+1 < len(data); i++ {
		if data[i] == '\r' && data[i+1] == '\n' {
			return i
		}
	}
	return -1
}

func (r *Request) parseRequestLine(line string) string {
	firstSpace := strings.IndexByte(line, ' ')
	if firstSpace < 0 {
		return "invalid request line: missing method"
	}
	r.Method = line[:firstSpace]
	if !allowedMethods[r.Method] {
		return "invalid HTTP method: " + r.Method
	}

	secondSpace := strings.IndexByte(line[firstSpace+1:], ' ')
	if secondSpace < 0 {
		return "invalid request line: missing HTTP version"
	}
	secondSpace += firstSpace + 1

	r.URI = line[firstSpace+1 : secondSpace]
	if r.URI == "" {
		return "invalid request line: empty URI"
	}
	r.parseURI()

	r.HTTPVersion = line[secondSpace+1:]
	if r.HTTPVersion != "HTTP/1.0" && r.HTTPVersion != "HTTP/1.1" {
		return "unsupported HTTP version: " + r.HTTPVersion
	}
	return ""
}

func (r *Request) parseURI() {
	if idx := strings.IndexByte(r.URI, '?'); idx >= 0 {
		r.Path, r.Query = r.URI[:idx], r.URI[idx+1:]
	} else {
		r.Path, r.Query = r.URI, ""
	}
}

func (r *Request) parseHeader(line string) string {
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return "invalid header: missing colon"
	}
	name := line[:colon]
	value := strings.Trim(line[colon+1:], " \t")

	lowerName := strings.ToLower(name)
	r.Headers.Set(lowerName, value)

	if lowerName == "content-length" {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n < 0 {
			return "invalid Content-Length value"
		}
		r.ContentLength = n
	}
	return ""
}

func parseChunkSize(line []byte) (int64, string) {
	s := string(line)
	if idx := strings.IndexByte(s, ';'); idx >= 0 {
		s = s[:idx]
	}
	s = strings.Trim(s, " \t")

	n, err := strconv.ParseInt(s, 16, 64)
	if err != nil || s == "" {
		return 0, "invalid chunk size"
	}
	return n, ""
}

// Host returns the Host header with any :port suffix stripped, grounded on
// HttpRequest::getHost.
func (r *Request) Host() string {
	host := r.Headers.Get("host")
	if idx := strings.IndexByte(host, ':'); idx >= 0 {
		return host[:idx]
	}
	return host
}

// KeepAlive applies HTTP/1.0-vs-1.1 default keep-alive semantics, grounded
// on HttpRequest::isKeepAlive.
func (r *Request) KeepAlive() bool {
	connection := strings.ToLower(r.Headers.Get("connection"))
	if r.HTTPVersion == "HTTP/1.1" {
		return connection != "close"
	}
	return connection == "keep-alive"
}
