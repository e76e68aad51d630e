package cgi

import (
	"os"
	"strconv"
	"strings"

	"github.com/School42/webserv/internal/config"
	"github.com/School42/webserv/internal/httpparse"
)

// RequestInfo carries the subset of request/route attributes the
// environment builder needs, decoupled from internal/conn's connection
// type so this package has no dependency on the connection slab.
type RequestInfo struct {
	Method      string
	URI         string
	Path        string
	Query       string
	HTTPVersion string
	Host        string
	Headers     httpparse.Header
	Body        []byte
	ClientIP    string
	ClientPort  int
	ServerPort  int
}

// extractPathInfo returns the part of uri following scriptName, with any
// query string stripped. Grounded on CgiHandler::extractPathInfo.
func extractPathInfo(uri, scriptName string) string {
	idx := strings.Index(uri, scriptName)
	if idx < 0 {
		return ""
	}
	after := idx + len(scriptName)
	if after >= len(uri) {
		return ""
	}
	remaining := uri[after:]
	if q := strings.IndexByte(remaining, '?'); q >= 0 {
		remaining = remaining[:q]
	}
	return remaining
}

// BuildEnvironment assembles the CGI/1.1 environment described in
// spec.md §6.3, grounded on CgiHandler::buildEnvironment.
func BuildEnvironment(req RequestInfo, scriptPath, documentRoot string) []string {
	env := []string{
		"GATEWAY_INTERFACE=CGI/1.1",
		"SERVER_PROTOCOL=" + req.HTTPVersion,
		"SERVER_SOFTWARE=webserv/1.0",
		"REQUEST_METHOD=" + req.Method,
		"SERVER_PORT=" + strconv.Itoa(req.ServerPort),
	}

	host := req.Host
	if host == "" {
		host = "localhost"
	}
	env = append(env, "SERVER_NAME="+host)

	env = append(env, "SCRIPT_NAME="+req.Path)
	env = append(env, "SCRIPT_FILENAME="+scriptPath)

	if pathInfo := extractPathInfo(req.URI, req.Path); pathInfo != "" {
		env = append(env, "PATH_INFO="+pathInfo)
		env = append(env, "PATH_TRANSLATED="+documentRoot+pathInfo)
	}

	env = append(env, "QUERY_STRING="+req.Query)
	env = append(env, "REQUEST_URI="+req.URI)

	if documentRoot != "" {
		env = append(env, "DOCUMENT_ROOT="+documentRoot)
	}

	env = append(env, "REMOTE_ADDR="+req.ClientIP)
	env = append(env, "REMOTE_PORT="+strconv.Itoa(req.ClientPort))

	if req.Method == "POST" {
		env = append(env, "CONTENT_LENGTH="+strconv.Itoa(len(req.Body)))
		if ct := req.Headers.Get("Content-Type"); ct != "" {
			env = append(env, "CONTENT_TYPE="+ct)
		}
	}

	for name, value := range req.Headers {
		if name == "content-type" || name == "content-length" {
			continue
		}
		var b strings.Builder
		b.WriteString("HTTP_")
		for _, c := range name {
			if c == '-' {
				b.WriteByte('_')
			} else {
				b.WriteRune(toUpperASCII(c))
			}
		}
		env = append(env, b.String()+"="+value)
	}

	if path := os.Getenv("PATH"); path != "" {
		env = append(env, "PATH="+path)
	} else {
		env = append(env, "PATH=/usr/local/bin:/usr/bin:/bin")
	}
	if home := os.Getenv("HOME"); home != "" {
		env = append(env, "HOME="+home)
	}

	env = append(env, "REDIRECT_STATUS=200")

	return env
}

func toUpperASCII(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - 'a' + 'A'
	}
	return r
}

// SelectInterpreter picks the CGI interpreter for scriptPath, grounded on
// CgiHandler::getInterpreter: an explicit cgi_pass wins, otherwise the
// extension picks a default, preferring a handful of well-known absolute
// paths before falling back to a bare command name resolved via PATH.
func SelectInterpreter(scriptPath string, location *config.LocationConfig) string {
	if len(location.CGIPass) > 0 {
		return location.CGIPass[0]
	}

	dot := strings.LastIndexByte(scriptPath, '.')
	if dot < 0 {
		return ""
	}
	ext := scriptPath[dot:]

	firstExecutable := func(candidates ...string) string {
		for _, c := range candidates[:len(candidates)-1] {
			if isExecutable(c) {
				return c
			}
		}
		return candidates[len(candidates)-1]
	}

	switch ext {
	case ".py":
		return firstExecutable("/usr/bin/python3", "/usr/bin/python", "python3")
	case ".pl":
		return firstExecutable("/usr/bin/perl", "perl")
	case ".rb":
		return firstExecutable("/usr/bin/ruby", "ruby")
	case ".php":
		return firstExecutable("/usr/bin/php-cgi", "/usr/bin/php", "/usr/local/bin/php-cgi", "/usr/local/bin/php", "php")
	case ".sh":
		return firstExecutable("/bin/bash", "/bin/sh", "sh")
	}
	return ""
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}
