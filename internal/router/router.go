// Package router implements virtual-host selection, longest-prefix location
// matching, method/CGI/redirect classification, and filesystem path
// resolution, described in spec.md §4.F. Grounded on
// original_source/src/Router.cpp.
package router

import (
	"strconv"
	"strings"

	"github.com/School42/webserv/internal/config"
	"github.com/School42/webserv/internal/logging"
)

var log = logging.For("router")

// Result is the outcome of routing one request.
type Result struct {
	Matched      bool
	ErrorCode    int
	ErrorMessage string

	Server       *config.ServerConfig
	Location     *config.LocationConfig
	ResolvedPath string
}

// Router resolves requests against a fixed, already-validated server list.
type Router struct {
	servers []config.ServerConfig
}

// New wraps a loaded configuration for routing. servers is treated as
// read-only, per spec.md §4.A.
func New(servers []config.ServerConfig) *Router {
	return &Router{servers: servers}
}

// Route runs the full resolution pipeline for one request: server lookup,
// path decode/normalize with a traversal check, location lookup, redirect
// short-circuit, and method validation. Grounded on Router::route.
func (r *Router) Route(host string, listenPort int, method, rawPath string) Result {
	server := r.FindServer(host, listenPort)
	if server == nil {
		log.Warnf("no server configured for host=%q port=%d", host, listenPort)
		return Result{Matched: false, ErrorCode: 500, ErrorMessage: "no server configuration found"}
	}

	decoded := urlDecode(rawPath)
	normalized := normalizePath(decoded)

	if strings.Contains(normalized, "..") {
		log.Warnf("path traversal attempt host=%q path=%q", host, rawPath)
		return Result{Matched: false, ErrorCode: 403, ErrorMessage: "forbidden: path traversal attempt"}
	}

	location := r.FindLocation(server, normalized)
	if location == nil {
		log.Infof("no location matched host=%q path=%q", host, normalized)
		return Result{Matched: false, ErrorCode: 404, ErrorMessage: "no matching location found", Server: server}
	}

	if location.HasRedirect() {
		return Result{Matched: true, Server: server, Location: location}
	}

	if !location.AllowsMethod(method) {
		log.Infof("method not allowed method=%s path=%q", method, normalized)
		return Result{Matched: false, ErrorCode: 405, ErrorMessage: "method not allowed", Server: server, Location: location}
	}

	resolved := ResolvePath(location, normalized)
	return Result{Matched: true, Server: server, Location: location, ResolvedPath: resolved}
}

// FindServer picks the virtual host for host+port: the first server
// listening on port whose server_name matches, falling back to the first
// server bound to that port if none match. Grounded on Router::findServer.
func (r *Router) FindServer(host string, port int) *config.ServerConfig {
	var defaultServer *config.ServerConfig

	for i := range r.servers {
		server := &r.servers[i]

		listensOnPort := false
		for _, addr := range server.Listen {
			if addr.Port == port {
				listensOnPort = true
				break
			}
		}
		if !listensOnPort {
			continue
		}

		if defaultServer == nil {
			defaultServer = server
		}
		if matchServerName(server, host) {
			return server
		}
	}
	return defaultServer
}

func matchServerName(server *config.ServerConfig, host string) bool {
	if len(server.ServerNames) == 0 {
		return false
	}
	lowerHost := strings.ToLower(host)

	for _, name := range server.ServerNames {
		lowerName := strings.ToLower(name)
		if lowerHost == lowerName {
			return true
		}
		if len(lowerName) > 2 && strings.HasPrefix(lowerName, "*.") {
			suffix := lowerName[1:] // ".example.com"
			if len(lowerHost) > len(suffix) && strings.HasSuffix(lowerHost, suffix) {
				return true
			}
		}
	}
	return false
}

// FindLocation picks the longest matching location path under server,
// grounded on Router::findLocation/matchLocation.
func (r *Router) FindLocation(server *config.ServerConfig, path string) *config.LocationConfig {
	var best *config.LocationConfig
	bestLen := -1

	for i := range server.Locations {
		loc := &server.Locations[i]
		if matchLocation(loc.Path, path) && len(loc.Path) > bestLen {
			best = loc
			bestLen = len(loc.Path)
		}
	}
	return best
}

func matchLocation(locationPath, requestPath string) bool {
	if locationPath == requestPath {
		return true
	}
	if len(requestPath) > len(locationPath) && strings.HasPrefix(requestPath, locationPath) {
		if locationPath[len(locationPath)-1] == '/' {
			return true
		}
		if requestPath[len(locationPath)] == '/' {
			return true
		}
	}
	return locationPath == "/"
}

// ResolvePath maps a normalized request path to a filesystem path under
// the location's root, grounded on Router::resolvePath.
func ResolvePath(location *config.LocationConfig, uri string) string {
	root := strings.TrimSuffix(location.Root, "/")

	var relative string
	switch {
	case len(uri) > len(location.Path):
		relative = uri[len(location.Path):]
	case uri == location.Path:
		relative = ""
	default:
		relative = uri
	}
	if relative == "" || relative[0] != '/' {
		relative = "/" + relative
	}
	return root + relative
}

// IsCGIRequest reports whether path ends in one of location's configured
// CGI extensions, grounded on Router::isCgiRequest.
func IsCGIRequest(location *config.LocationConfig, path string) bool {
	if len(location.CGIExtensions) == 0 {
		return false
	}
	return location.IsCGIExtension(path)
}

// Redirect extracts the configured return code/URL pair, grounded on
// Router::getRedirect.
func Redirect(location *config.LocationConfig) (code int, url string) {
	return location.ReturnCode, location.ReturnValue
}

// normalizePath collapses ., .., and duplicate slashes segment by segment,
// grounded on Router::normalizePath. A literal ".." substring surviving a
// filename (e.g. "/foo..bar") is not caught here — that's the traversal
// check's job in Route, and the two intentionally overlap the way the
// original does.
func normalizePath(path string) string {
	if path == "" {
		return "/"
	}

	var segments []string
	var seg strings.Builder

	flush := func() {
		s := seg.String()
		seg.Reset()
		switch s {
		case "":
			return
		case "..":
			if len(segments) > 0 {
				segments = segments[:len(segments)-1]
			}
		case ".":
			return
		default:
			segments = append(segments, s)
		}
	}

	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			flush()
		} else {
			seg.WriteByte(path[i])
		}
	}
	flush()

	result := "/" + strings.Join(segments, "/")
	if len(path) > 1 && path[len(path)-1] == '/' && result[len(result)-1] != '/' {
		result += "/"
	}
	return result
}

// urlDecode handles %XX percent-escapes and '+' as space, grounded on
// Router::urlDecode.
func urlDecode(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '%' && i+2 < len(s):
			v, err := strconv.ParseInt(s[i+1:i+3], 16, 16)
			if err == nil && v >= 0 && v <= 255 {
				b.WriteByte(byte(v))
				i += 2
			} else {
				b.WriteByte(s[i])
			}
		case s[i] == '+':
			b.WriteByte(' ')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
