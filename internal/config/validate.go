package config

import (
	"strconv"
	"strings"
)

// Validate checks the four load-time invariants from spec.md §3, run after
// inheritance resolution. The original enforces (2) and (3) as parse-time
// duplicate rejections (ServerConfig::addListen/addLocation in
// original_source/src/ServerConfig.cpp); (1) and (4) can only be checked
// once defaults have been applied, so they live here.
func Validate(servers []ServerConfig) error {
	for si := range servers {
		server := &servers[si]

		for code, uri := range server.ErrorPages {
			if code < 400 || code > 599 {
				return &ConfigError{Message: "error_page code out of range [400,599]: " + strconv.Itoa(code) + " -> " + uri}
			}
		}

		seenListen := map[string]bool{}
		for _, l := range server.Listen {
			key := l.Interface + ":" + strconv.Itoa(l.Port)
			if seenListen[key] {
				return &ConfigError{Message: "duplicate listen endpoint in server: " + key}
			}
			seenListen[key] = true
		}

		seenPaths := map[string]bool{}
		for li := range server.Locations {
			loc := &server.Locations[li]
			if seenPaths[loc.Path] {
				return &ConfigError{Message: "duplicate location path in server: " + loc.Path}
			}
			seenPaths[loc.Path] = true

			if !loc.RootSet || loc.Root == "" {
				return &ConfigError{Message: "location " + loc.Path + " has no resolved root"}
			}

			if loc.HasReturn {
				if loc.ReturnCode < 200 || loc.ReturnCode > 599 {
					return &ConfigError{Message: "return code out of range [200,599] in location " + loc.Path}
				}
				if loc.ReturnCode >= 300 && loc.ReturnCode < 400 {
					if !isValidRedirectTarget(loc.ReturnValue) {
						return &ConfigError{Message: "3xx return in location " + loc.Path + " must start with '/', 'http://' or 'https://'"}
					}
				}
			}
		}
	}
	return nil
}

func isValidRedirectTarget(url string) bool {
	return strings.HasPrefix(url, "/") || strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

