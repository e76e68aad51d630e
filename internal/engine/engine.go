// Package engine implements spec.md §4.K, the event loop that glues the
// listener set, the connection table, and the CGI session table together
// and dispatches readiness events into their respective state machines.
// Grounded on ListenAndServe/epollLoop in the teacher's http.go,
// generalized from a single fixed-shape JSON handler into the full
// static/CGI/upload/delete/redirect/error dispatch of
// original_source/src/Server.cpp::processRequest.
package engine

import (
	"net"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/School42/webserv/internal/cgi"
	"github.com/School42/webserv/internal/conn"
	"github.com/School42/webserv/internal/config"
	"github.com/School42/webserv/internal/epoll"
	"github.com/School42/webserv/internal/httpparse"
	"github.com/School42/webserv/internal/logging"
	"github.com/School42/webserv/internal/router"
)

var log = logging.For("engine")

// Engine owns the listener set, the connection table, and the CGI session
// table, the three pieces of shared state spec.md §4.K's "Shared-resource
// policy" says are touched only by the loop itself (no locks required).
type Engine struct {
	servers []config.ServerConfig
	router  *router.Router

	poller *epoll.Poller
	cgiMgr *cgi.Manager

	listeners   []*listener
	listenPorts map[int]int // listener fd -> port

	connections map[int]*conn.Connection
	generations map[int]uint32

	running int32

	lastSweep time.Time
}

// New builds an engine from a loaded, validated configuration. It does
// not bind sockets yet; call Start for that.
func New(servers []config.ServerConfig) (*Engine, error) {
	poller, err := epoll.New()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		servers:     servers,
		router:      router.New(servers),
		poller:      poller,
		listenPorts: map[int]int{},
		connections: map[int]*conn.Connection{},
		generations: map[int]uint32{},
	}
	e.cgiMgr = cgi.NewManager(poller)
	return e, nil
}

// Start binds and registers every distinct listen endpoint named across
// the loaded servers, grounded on ListenAndServe's listener bootstrap.
func (e *Engine) Start() error {
	for _, endpoint := range collectListenEndpoints(e.servers) {
		l, err := createListener(endpoint)
		if err != nil {
			return err
		}
		if err := e.poller.Add(l.fd, epoll.Readable); err != nil {
			syscall.Close(l.fd)
			return err
		}
		e.listeners = append(e.listeners, l)
		e.listenPorts[l.fd] = l.port
		log.Infof("listening on port %d (fd %d)", l.port, l.fd)
	}
	return nil
}

// Close releases every listener socket and the epoll instance.
func (e *Engine) Close() {
	for _, l := range e.listeners {
		syscall.Close(l.fd)
	}
	e.poller.Close()
}

// Stop clears the cooperative running flag; the current Wait call in Run
// returns within its 1s timeout and the loop exits.
func (e *Engine) Stop() {
	atomic.StoreInt32(&e.running, 0)
}

// Run is the main step described in spec.md §4.K: wait up to 1s, dispatch
// every ready fd, then once per wall-clock second sweep for timeouts. It
// blocks until Stop is called.
func (e *Engine) Run() {
	atomic.StoreInt32(&e.running, 1)
	e.lastSweep = time.Now()

	for atomic.LoadInt32(&e.running) != 0 {
		ready, err := e.poller.Wait(1000, nil)
		if err != nil {
			log.Errorf("epoll wait: %v", err)
			continue
		}

		for _, r := range ready {
			e.dispatch(r)
		}

		now := time.Now()
		if now.Sub(e.lastSweep) >= time.Second {
			e.sweepConnections(now)
			e.sweepCGI(now)
			e.lastSweep = now
		}
	}
}

func (e *Engine) dispatch(r epoll.Ready) {
	if port, ok := e.listenPorts[r.Fd]; ok {
		e.acceptAll(r.Fd, port)
		return
	}

	if session, ok := e.cgiMgr.LookupByStdout(r.Fd); ok {
		e.handleCGIStdout(session, r.Events)
		return
	}
	if session, ok := e.cgiMgr.LookupByStdin(r.Fd); ok {
		e.handleCGIStdin(session, r.Events)
		return
	}

	if c, ok := e.connections[r.Fd]; ok {
		e.handleConnectionEvent(c, r.Events)
	}
}

// acceptAll accepts connections until EAGAIN, grounded on epollLoop's
// accept loop in http.go.
func (e *Engine) acceptAll(listenFd, port int) {
	for {
		connFd, sa, err := syscall.Accept(listenFd)
		if err != nil {
			if err != syscall.EAGAIN {
				log.Errorf("accept: %v", err)
			}
			return
		}

		if err := syscall.SetNonblock(connFd, true); err != nil {
			syscall.Close(connFd)
			continue
		}

		clientIP, clientPort := peerAddr(sa)

		e.generations[connFd]++
		c := conn.New(connFd, clientIP, clientPort, port, e.defaultMaxBodySize())
		c.Generation = e.generations[connFd]
		c.Request.SetBodySizeResolver(e.resolveMaxBodySize(port))
		e.connections[connFd] = c

		if err := e.poller.Add(connFd, epoll.Readable); err != nil {
			log.Errorf("epoll add conn: %v", err)
			e.destroyConnection(c)
			continue
		}
	}
}

func peerAddr(sa syscall.Sockaddr) (ip string, port int) {
	if sa4, ok := sa.(*syscall.SockaddrInet4); ok {
		return net.IP(sa4.Addr[:]).String(), sa4.Port
	}
	return "", 0
}

// defaultMaxBodySize is the ceiling a request parses against before its
// Host/method/path are known, sized generously (the loosest configured
// limit) so a request is never truncated before resolveMaxBodySize gets a
// chance to apply its own location's actual client_max_body_size.
func (e *Engine) defaultMaxBodySize() int64 {
	var max int64 = 1 << 20
	for _, s := range e.servers {
		if s.ClientMaxBodySize > max {
			max = s.ClientMaxBodySize
		}
		for _, l := range s.Locations {
			if l.ClientMaxBodySize > max {
				max = l.ClientMaxBodySize
			}
		}
	}
	return max
}

// resolveMaxBodySize binds a listener's port into a httpparse.BodySizeResolver
// that looks up the matched location's client_max_body_size once a
// request's headers are in, so the ceiling enforced against Content-Length
// and the chunked body is the specific location's rather than the loosest
// one configured anywhere.
func (e *Engine) resolveMaxBodySize(port int) httpparse.BodySizeResolver {
	return func(host, method, path string) (int64, bool) {
		result := e.router.Route(host, port, method, path)
		if result.Location == nil {
			return 0, false
		}
		return result.Location.ClientMaxBodySize, true
	}
}

func (e *Engine) destroyConnection(c *conn.Connection) {
	_ = e.poller.Remove(c.Fd)
	syscall.Close(c.Fd)
	delete(e.connections, c.Fd)
}

func (e *Engine) sweepConnections(now time.Time) {
	for fd, c := range e.connections {
		if c.IsIdleTimedOut(now) {
			log.Infof("idle timeout fd=%d", fd)
			e.destroyConnection(c)
		}
	}
}

func (e *Engine) sweepCGI(now time.Time) {
	for _, session := range e.cgiMgr.Sweep(now) {
		log.Infof("CGI session [%s] pid=%d timed out", session.TraceID, session.PID())
		session.Kill()
		e.finalizeCGI(session, 504, "Gateway Timeout", "")
	}
}
