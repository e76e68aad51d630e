package config

// resolveInheritance fills in each location's unset fields from its parent
// server, then from package-wide defaults, mirroring
// original_source/src/LocationConfig.cpp's inheritFrom plus
// Parser.hpp's applyServerDefaults/applyLocationDefaults (spec.md §3).
func resolveInheritance(servers []ServerConfig) {
	for si := range servers {
		applyServerDefaults(&servers[si])
		for li := range servers[si].Locations {
			inheritLocation(&servers[si].Locations[li], &servers[si])
			applyLocationDefaults(&servers[si].Locations[li])
		}
	}
}

func inheritLocation(loc *LocationConfig, parent *ServerConfig) {
	if !loc.RootSet && parent.RootSet {
		loc.Root = parent.Root
		loc.RootSet = true
	}
	if !loc.IndexSet && parent.IndexSet {
		loc.Index = append([]string(nil), parent.Index...)
		loc.IndexSet = true
	}
	if !loc.AutoindexSet && parent.AutoindexSet {
		loc.Autoindex = parent.Autoindex
		loc.AutoindexSet = true
	}
	if !loc.ClientMaxBodySizeSet && parent.ClientMaxBodySizeSet {
		loc.ClientMaxBodySize = parent.ClientMaxBodySize
		loc.ClientMaxBodySizeSet = true
	}
}

func applyServerDefaults(server *ServerConfig) {
	if !server.IndexSet {
		server.Index = []string{"index.html"}
	}
	if !server.ClientMaxBodySizeSet {
		server.ClientMaxBodySize = defaultClientMaxBodySize
	}
	// Autoindex defaults to off, which is the zero value; AutoindexSet is
	// left false so a nested location can still tell "unset" from "off".
}

func applyLocationDefaults(loc *LocationConfig) {
	if !loc.IndexSet {
		loc.Index = []string{"index.html"}
	}
	if !loc.ClientMaxBodySizeSet {
		loc.ClientMaxBodySize = defaultClientMaxBodySize
	}
	if len(loc.AllowedMethods) == 0 {
		loc.AllowedMethods = []string{"GET", "POST"}
	}
}
