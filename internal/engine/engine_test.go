package engine

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/onsi/gomega"

	"github.com/School42/webserv/internal/cgi"
	"github.com/School42/webserv/internal/conn"
	"github.com/School42/webserv/internal/config"
	"github.com/School42/webserv/internal/epoll"
)

func testSocketpair(g *gomega.WithT) (int, int) {
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(syscall.SetNonblock(fds[0], true)).To(gomega.Succeed())
	g.Expect(syscall.SetNonblock(fds[1], true)).To(gomega.Succeed())
	return fds[0], fds[1]
}

func oneLocationServer(root string) config.ServerConfig {
	return config.ServerConfig{
		Listen: []config.ListenEndpoint{{Port: 80}},
		Locations: []config.LocationConfig{
			{
				Path:           "/",
				Root:           root,
				Index:          []string{"index.html"},
				AllowedMethods: []string{"GET", "POST", "DELETE"},
			},
		},
	}
}

// newTestConn wires a connection fd into e's poller and connection table the
// way acceptAll would, so sendResponse's Modify call has something to act on.
func newTestConn(g *gomega.WithT, e *Engine, fd int) *conn.Connection {
	c := conn.New(fd, "127.0.0.1", 12345, 80, 1<<20)
	e.connections[fd] = c
	e.generations[fd] = c.Generation
	g.Expect(e.poller.Add(fd, epoll.Readable)).To(gomega.Succeed())
	return c
}

func TestProcessRequestServesStaticFile(t *testing.T) {
	g := gomega.NewWithT(t)
	dir := t.TempDir()
	g.Expect(os.WriteFile(filepath.Join(dir, "index.html"), []byte("hello world"), 0o644)).To(gomega.Succeed())

	e, err := New([]config.ServerConfig{oneLocationServer(dir)})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	defer e.poller.Close()

	a, b := testSocketpair(g)
	defer syscall.Close(b)
	c := newTestConn(g, e, a)

	c.Request.Parse([]byte("GET /index.html HTTP/1.1\r\nHost: example.com\r\n\r\n"))

	e.processRequest(c)
	g.Expect(c.State).To(gomega.Equal(conn.WritingResponse))

	// The response is only queued; drain it the way the loop does on the
	// connection's next Writable event.
	e.handleConnectionEvent(c, epoll.Writable)

	buf := make([]byte, 4096)
	n, err := syscall.Read(b, buf)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	got := string(buf[:n])
	g.Expect(got).To(gomega.ContainSubstring("200 OK"))
	g.Expect(got).To(gomega.ContainSubstring("hello world"))
}

func TestProcessRequestReturns404ForMissingFile(t *testing.T) {
	g := gomega.NewWithT(t)
	dir := t.TempDir()

	e, err := New([]config.ServerConfig{oneLocationServer(dir)})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	defer e.poller.Close()

	a, b := testSocketpair(g)
	defer syscall.Close(b)
	c := newTestConn(g, e, a)

	c.Request.Parse([]byte("GET /missing.html HTTP/1.1\r\nHost: example.com\r\n\r\n"))
	e.processRequest(c)
	e.handleConnectionEvent(c, epoll.Writable)

	buf := make([]byte, 4096)
	n, err := syscall.Read(b, buf)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(string(buf[:n])).To(gomega.ContainSubstring("404"))
}

func TestProcessRequestDeletesFile(t *testing.T) {
	g := gomega.NewWithT(t)
	dir := t.TempDir()
	target := filepath.Join(dir, "doomed.txt")
	g.Expect(os.WriteFile(target, []byte("bye"), 0o644)).To(gomega.Succeed())

	e, err := New([]config.ServerConfig{oneLocationServer(dir)})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	defer e.poller.Close()

	a, b := testSocketpair(g)
	defer syscall.Close(b)
	c := newTestConn(g, e, a)

	c.Request.Parse([]byte("DELETE /doomed.txt HTTP/1.1\r\nHost: example.com\r\n\r\n"))
	e.processRequest(c)
	e.handleConnectionEvent(c, epoll.Writable)

	buf := make([]byte, 4096)
	n, err := syscall.Read(b, buf)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(string(buf[:n])).To(gomega.ContainSubstring("204"))
	g.Expect(target).NotTo(gomega.BeAnExistingFile())
}

func TestProcessRequestFollowsConfiguredRedirect(t *testing.T) {
	g := gomega.NewWithT(t)
	dir := t.TempDir()

	server := config.ServerConfig{
		Listen: []config.ListenEndpoint{{Port: 80}},
		Locations: []config.LocationConfig{
			{Path: "/old", HasReturn: true, ReturnCode: 301, ReturnValue: "/new", AllowedMethods: []string{"GET"}},
			{Path: "/", Root: dir, AllowedMethods: []string{"GET"}},
		},
	}
	e, err := New([]config.ServerConfig{server})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	defer e.poller.Close()

	a, b := testSocketpair(g)
	defer syscall.Close(b)
	c := newTestConn(g, e, a)

	c.Request.Parse([]byte("GET /old HTTP/1.1\r\nHost: example.com\r\n\r\n"))
	e.processRequest(c)
	e.handleConnectionEvent(c, epoll.Writable)

	buf := make([]byte, 4096)
	n, err := syscall.Read(b, buf)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	got := string(buf[:n])
	g.Expect(got).To(gomega.ContainSubstring("301"))
	g.Expect(got).To(gomega.ContainSubstring("Location: /new"))
}

func TestResolveMaxBodySizeUsesMatchedLocationCeiling(t *testing.T) {
	g := gomega.NewWithT(t)
	server := config.ServerConfig{
		Listen: []config.ListenEndpoint{{Port: 80}},
		Locations: []config.LocationConfig{
			{Path: "/", Root: t.TempDir(), AllowedMethods: []string{"GET"}, ClientMaxBodySize: 1 << 20},
			{Path: "/tight", Root: t.TempDir(), AllowedMethods: []string{"POST"}, ClientMaxBodySize: 16},
		},
	}
	e, err := New([]config.ServerConfig{server})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	defer e.poller.Close()

	resolve := e.resolveMaxBodySize(80)

	n, ok := resolve("example.com", "POST", "/tight")
	g.Expect(ok).To(gomega.BeTrue())
	g.Expect(n).To(gomega.Equal(int64(16)))

	n, ok = resolve("example.com", "GET", "/")
	g.Expect(ok).To(gomega.BeTrue())
	g.Expect(n).To(gomega.Equal(int64(1 << 20)))

	_, ok = e.resolveMaxBodySize(81)("example.com", "GET", "/")
	g.Expect(ok).To(gomega.BeFalse())
}

func TestResolveOwnerRejectsStaleGeneration(t *testing.T) {
	g := gomega.NewWithT(t)
	e, err := New([]config.ServerConfig{oneLocationServer(t.TempDir())})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	defer e.poller.Close()

	a, b := testSocketpair(g)
	defer syscall.Close(a)
	defer syscall.Close(b)
	c := newTestConn(g, e, a)

	owner := cgi.ConnHandle{Index: uint32(c.Fd), Generation: c.Generation}
	_, ok := e.resolveOwner(owner)
	g.Expect(ok).To(gomega.BeTrue())

	e.destroyConnection(c)
	_, ok = e.resolveOwner(owner)
	g.Expect(ok).To(gomega.BeFalse())
}
