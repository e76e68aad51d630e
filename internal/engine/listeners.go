package engine

import (
	"net"
	"strconv"
	"syscall"

	"github.com/School42/webserv/internal/config"
)

// listener is one bound, listening, non-blocking socket, grounded on
// socketCreateListener in the teacher's socket.go.
type listener struct {
	fd   int
	port int
}

func createListener(endpoint config.ListenEndpoint) (*listener, error) {
	fd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_STREAM, 0)
	if err != nil {
		return nil, err
	}

	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return nil, err
	}
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
		syscall.Close(fd)
		return nil, err
	}

	addr := syscall.SockaddrInet4{Port: endpoint.Port}
	iface := endpoint.Interface
	if iface == "" {
		iface = "0.0.0.0"
	}
	copy(addr.Addr[:], net.ParseIP(iface).To4())

	if err := syscall.Bind(fd, &addr); err != nil {
		syscall.Close(fd)
		return nil, err
	}
	if err := syscall.Listen(fd, syscall.SOMAXCONN); err != nil {
		syscall.Close(fd)
		return nil, err
	}

	return &listener{fd: fd, port: endpoint.Port}, nil
}

// collectListenEndpoints deduplicates every server's listen directives
// into the distinct sockets the process actually needs to bind, since
// several server blocks may share one `listen` endpoint (spec.md §3
// resolves per-server duplicates; across servers sharing one virtual-host
// port is the whole point of server_name dispatch).
func collectListenEndpoints(servers []config.ServerConfig) []config.ListenEndpoint {
	seen := map[string]bool{}
	var endpoints []config.ListenEndpoint
	for _, s := range servers {
		for _, l := range s.Listen {
			key := l.Interface + ":" + strconv.Itoa(l.Port)
			if seen[key] {
				continue
			}
			seen[key] = true
			endpoints = append(endpoints, l)
		}
	}
	return endpoints
}
