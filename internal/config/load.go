package config

import (
	"os"

	"github.com/School42/webserv/internal/logging"
)

var log = logging.For("config")

// Load reads, lexes, parses, resolves inheritance over, and validates the
// configuration file at path, returning the finished server list the core
// treats as a read-only collaborator (spec.md §4.A).
func Load(path string) ([]ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Errorf("read %s: %v", path, err)
		return nil, err
	}

	servers, err := NewParser(string(data)).Parse()
	if err != nil {
		log.Errorf("parse %s: %v", path, err)
		return nil, err
	}

	resolveInheritance(servers)

	if err := Validate(servers); err != nil {
		log.Errorf("validate %s: %v", path, err)
		return nil, err
	}
	log.Infof("loaded %d server block(s) from %s", len(servers), path)
	return servers, nil
}
