package cgi

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/onsi/gomega"

	"github.com/School42/webserv/internal/config"
	"github.com/School42/webserv/internal/epoll"
	"github.com/School42/webserv/internal/httpparse"
)

func runSessionToCompletion(g *gomega.WithT, poller *epoll.Poller, mgr *Manager, session *Session) []byte {
	for i := 0; i < 200; i++ {
		ready, err := poller.Wait(500, nil)
		g.Expect(err).NotTo(gomega.HaveOccurred())

		for _, r := range ready {
			switch r.Fd {
			case session.StdoutFd:
				eof, overLimit := OnStdoutReadable(session)
				g.Expect(overLimit).To(gomega.BeFalse())
				if eof {
					mgr.Finalize(session)
					return session.Output()
				}
			case session.StdinFd:
				g.Expect(OnStdinWritable(mgr, session)).To(gomega.Succeed())
			}
		}
	}
	g.Fail("CGI session never reached EOF")
	return nil
}

func TestStartAndRunEchoScript(t *testing.T) {
	g := gomega.NewWithT(t)
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "echo.sh")
	script := "echo 'Content-Type: text/plain'\necho ''\necho 'hello from cgi'\n"
	g.Expect(os.WriteFile(scriptPath, []byte(script), 0o644)).To(gomega.Succeed())

	poller, err := epoll.New()
	g.Expect(err).NotTo(gomega.HaveOccurred())
	defer poller.Close()

	mgr := NewManager(poller)
	location := &config.LocationConfig{CGIPass: []string{"/bin/sh"}}
	req := RequestInfo{Method: "GET", Path: "/cgi-bin/echo.sh", URI: "/cgi-bin/echo.sh", HTTPVersion: "HTTP/1.1", Headers: httpparse.Header{}}

	session, errResult := Start(mgr, ConnHandle{}, scriptPath, location, req, dir)
	g.Expect(errResult).To(gomega.BeNil())
	g.Expect(session).NotTo(gomega.BeNil())

	output := runSessionToCompletion(g, poller, mgr, session)
	parsed := ParseOutput(output)
	g.Expect(parsed.ContentType()).To(gomega.Equal("text/plain"))
	g.Expect(string(parsed.Body)).To(gomega.ContainSubstring("hello from cgi"))
}

func TestStartAndRunScriptThatReadsStdin(t *testing.T) {
	g := gomega.NewWithT(t)
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "cat.sh")
	script := "read line\necho 'Content-Type: text/plain'\necho ''\necho \"you said: $line\"\n"
	g.Expect(os.WriteFile(scriptPath, []byte(script), 0o644)).To(gomega.Succeed())

	poller, err := epoll.New()
	g.Expect(err).NotTo(gomega.HaveOccurred())
	defer poller.Close()

	mgr := NewManager(poller)
	location := &config.LocationConfig{CGIPass: []string{"/bin/sh"}}
	req := RequestInfo{
		Method: "POST", Path: "/cgi-bin/cat.sh", URI: "/cgi-bin/cat.sh",
		HTTPVersion: "HTTP/1.1", Headers: httpparse.Header{}, Body: []byte("hi there\n"),
	}

	session, errResult := Start(mgr, ConnHandle{}, scriptPath, location, req, dir)
	g.Expect(errResult).To(gomega.BeNil())

	output := runSessionToCompletion(g, poller, mgr, session)
	parsed := ParseOutput(output)
	g.Expect(string(parsed.Body)).To(gomega.ContainSubstring("you said: hi there"))
}

func TestStartRejectsMissingScript(t *testing.T) {
	g := gomega.NewWithT(t)
	poller, err := epoll.New()
	g.Expect(err).NotTo(gomega.HaveOccurred())
	defer poller.Close()

	mgr := NewManager(poller)
	location := &config.LocationConfig{CGIPass: []string{"/bin/sh"}}
	req := RequestInfo{Method: "GET", Headers: httpparse.Header{}}

	session, errResult := Start(mgr, ConnHandle{}, "/nonexistent/script.sh", location, req, "/nonexistent")
	g.Expect(session).To(gomega.BeNil())
	g.Expect(errResult.StatusCode).To(gomega.Equal(404))
}

func TestStartRejectsUnexecutableInterpreter(t *testing.T) {
	g := gomega.NewWithT(t)
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "x.py")
	g.Expect(os.WriteFile(scriptPath, []byte("print('hi')"), 0o644)).To(gomega.Succeed())

	poller, err := epoll.New()
	g.Expect(err).NotTo(gomega.HaveOccurred())
	defer poller.Close()

	mgr := NewManager(poller)
	location := &config.LocationConfig{CGIPass: []string{"/no/such/interpreter"}}
	req := RequestInfo{Method: "GET", Headers: httpparse.Header{}}

	session, errResult := Start(mgr, ConnHandle{}, scriptPath, location, req, dir)
	g.Expect(session).To(gomega.BeNil())
	g.Expect(errResult.StatusCode).To(gomega.Equal(500))
}
