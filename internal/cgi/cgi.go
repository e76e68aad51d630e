// Package cgi implements the non-blocking CGI subprocess lifecycle
// described in spec.md §4.I: fork/exec with pipes, environment assembly,
// readiness-driven I/O pumping, reaping, timeouts, and output parsing.
// Grounded on original_source/src/CgiHandler.cpp, redesigned from its
// blocking busy-wait read loop into a session keyed by stdout fd that the
// event loop drives one readiness event at a time.
package cgi

import (
	"bytes"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nu7hatch/gouuid"

	"github.com/School42/webserv/internal/config"
	"github.com/School42/webserv/internal/epoll"
	"github.com/School42/webserv/internal/logging"
)

var log = logging.For("cgi")

const (
	maxOutputSize = 10 << 20 // spec.md §4.I "10 MiB CGI ceiling"
	sessionTTL    = 30 * time.Second
)

// ConnHandle is an opaque, generational reference to whatever connection
// slab owns the request that started this session. A session weakly
// references its connection: the handle's owner is responsible for
// deciding whether it still refers to a live connection at finalisation
// time (spec.md §4.I "Ownership").
type ConnHandle struct {
	Index      uint32
	Generation uint32
}

// Session is the loop's record of one in-flight CGI child, keyed by its
// stdout fd. Grounded on the "CGI session" data model in spec.md §2.
type Session struct {
	Owner ConnHandle

	// TraceID identifies this session in logs; it has no protocol meaning.
	TraceID string

	cmd        *exec.Cmd
	pid        int
	stdoutFile *os.File
	stdinFile  *os.File
	StdoutFd   int
	StdinFd    int // -1 once closed

	Start time.Time

	input         []byte
	bytesSent     int
	inputComplete bool

	output bytes.Buffer

	done      bool
	canceled  bool
	cancelMsg string
}

// Result is a synchronous failure produced before or in place of spawning
// a child (missing script, unreadable interpreter, fork/pipe failure).
type Result struct {
	StatusCode   int
	StatusText   string
	ErrorMessage string
}

func syncError(code int, text, message string) (*Session, *Result) {
	return nil, &Result{StatusCode: code, StatusText: text, ErrorMessage: message}
}

// newTraceID generates a short id for correlating one CGI child's log lines,
// falling back to a fixed placeholder if the random source ever fails.
func newTraceID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return "cgi-unknown"
	}
	return strings.ReplaceAll(id.String(), "-", "")[:12]
}

// Manager owns the session slab and the stdin-fd→stdout-fd side map,
// exactly as described in spec.md §2 ("A secondary map stdin-fd→stdout-fd
// exists so readiness on stdin can find its owning session").
type Manager struct {
	mu        sync.Mutex
	sessions  map[int]*Session // keyed by stdout fd
	stdinToFd map[int]int      // stdin fd -> stdout fd
	poller    *epoll.Poller
}

// NewManager creates an empty session table bound to poller.
func NewManager(poller *epoll.Poller) *Manager {
	return &Manager{
		sessions:  map[int]*Session{},
		stdinToFd: map[int]int{},
		poller:    poller,
	}
}

// Start forks/execs the CGI child for scriptPath. On success it registers
// the new session's fds with the poller and returns it; on any pre-fork or
// fork failure it returns a synchronous error the caller turns directly
// into a 403/404/500 response without involving the loop.
func Start(mgr *Manager, owner ConnHandle, scriptPath string, location *config.LocationConfig, req RequestInfo, documentRoot string) (*Session, *Result) {
	info, err := os.Stat(scriptPath)
	if err != nil {
		return syncError(404, "Not Found", "CGI script not found: "+scriptPath)
	}
	if info.IsDir() {
		return syncError(404, "Not Found", "CGI script not found: "+scriptPath)
	}

	interpreter := SelectInterpreter(scriptPath, location)
	if interpreter == "" {
		if !isExecutable(scriptPath) {
			return syncError(403, "Forbidden", "CGI script is not executable")
		}
	} else if _, err := exec.LookPath(interpreter); err != nil {
		return syncError(500, "Internal Server Error", "CGI interpreter not found: "+interpreter)
	}

	var cmd *exec.Cmd
	if interpreter == "" {
		cmd = exec.Command(scriptPath)
	} else {
		cmd = exec.Command(interpreter, scriptPath)
	}
	cmd.Env = BuildEnvironment(req, scriptPath, documentRoot)

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return syncError(500, "Internal Server Error", "failed to create input pipe")
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return syncError(500, "Internal Server Error", "failed to create output pipe")
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		log.Errorf("fork %s: %v", scriptPath, err)
		return syncError(500, "Internal Server Error", "failed to fork CGI process")
	}

	stdinFile := stdinPipe.(*os.File)
	stdoutFile := stdoutPipe.(*os.File)
	if err := syscall.SetNonblock(int(stdinFile.Fd()), true); err != nil {
		_ = cmd.Process.Kill()
		return syncError(500, "Internal Server Error", "failed to set non-blocking pipe")
	}
	if err := syscall.SetNonblock(int(stdoutFile.Fd()), true); err != nil {
		_ = cmd.Process.Kill()
		return syncError(500, "Internal Server Error", "failed to set non-blocking pipe")
	}

	session := &Session{
		Owner:      owner,
		TraceID:    newTraceID(),
		cmd:        cmd,
		pid:        cmd.Process.Pid,
		stdoutFile: stdoutFile,
		stdinFile:  stdinFile,
		StdoutFd:   int(stdoutFile.Fd()),
		StdinFd:    int(stdinFile.Fd()),
		Start:      time.Now(),
		input:      req.Body,
	}

	mgr.mu.Lock()
	mgr.sessions[session.StdoutFd] = session
	if len(session.input) > 0 {
		mgr.stdinToFd[session.StdinFd] = session.StdoutFd
	}
	mgr.mu.Unlock()

	if err := mgr.poller.Add(session.StdoutFd, epoll.Readable); err != nil {
		mgr.teardown(session)
		return syncError(500, "Internal Server Error", "failed to register CGI stdout")
	}

	if len(session.input) == 0 {
		session.inputComplete = true
		session.closeStdin(mgr)
	} else if err := mgr.poller.Add(session.StdinFd, epoll.Writable); err != nil {
		mgr.teardown(session)
		return syncError(500, "Internal Server Error", "failed to register CGI stdin")
	}

	log.Infof("CGI session [%s] started pid=%d script=%s", session.TraceID, session.pid, scriptPath)
	return session, nil
}

// LookupByStdout returns the session keyed by a stdout-fd readiness event.
func (m *Manager) LookupByStdout(fd int) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[fd]
	return s, ok
}

// LookupByStdin resolves a stdin-fd readiness event to its owning session
// via the side map.
func (m *Manager) LookupByStdin(fd int) (*Session, bool) {
	m.mu.Lock()
	stdoutFd, ok := m.stdinToFd[fd]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	return m.LookupByStdout(stdoutFd)
}

func (s *Session) closeStdin(mgr *Manager) {
	if s.StdinFd < 0 {
		return
	}
	mgr.mu.Lock()
	delete(mgr.stdinToFd, s.StdinFd)
	mgr.mu.Unlock()
	_ = mgr.poller.Remove(s.StdinFd)
	_ = s.stdinFile.Close()
	s.StdinFd = -1
}

// OnStdinWritable writes the next slice of the session's input buffer,
// grounded on spec.md §4.I's I/O pump. When fully written it closes and
// deregisters stdin.
func OnStdinWritable(mgr *Manager, s *Session) error {
	if s.StdinFd < 0 {
		return nil
	}
	n, err := syscall.Write(s.StdinFd, s.input[s.bytesSent:])
	if n > 0 {
		s.bytesSent += n
	}
	if err != nil {
		if err == syscall.EAGAIN {
			return nil
		}
		s.closeStdin(mgr)
		return err
	}
	if s.bytesSent >= len(s.input) {
		s.inputComplete = true
		s.closeStdin(mgr)
	}
	return nil
}

// OnStdoutReadable reads into the session's output buffer. EOF signals the
// caller to finalise; an output size overrun cancels the session with 502.
// The pipe is read with raw syscalls: os.File reads on it would park in the
// Go runtime poller until data or EOF instead of returning EAGAIN.
func OnStdoutReadable(s *Session) (eof bool, overLimit bool) {
	buf := make([]byte, 4096)
	for {
		n, err := syscall.Read(s.StdoutFd, buf)
		if n > 0 {
			s.output.Write(buf[:n])
			if s.output.Len() > maxOutputSize {
				s.canceled = true
				s.cancelMsg = "CGI output too large"
				return false, true
			}
		}
		if err != nil {
			if err == syscall.EAGAIN {
				return false, false
			}
			return true, false
		}
		if n == 0 {
			return true, false
		}
	}
}

// Expired reports whether the session has run past the 30s CGI timeout.
func (s *Session) Expired(now time.Time) bool {
	return now.Sub(s.Start) > sessionTTL
}

// Kill sends SIGKILL to the child, used for both the 30s timeout sweep and
// an output-size overrun.
func (s *Session) Kill() {
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
}

// Reap blocks on the child's exit; acceptable per spec.md §4.I because by
// the time this is called stdout has hit EOF or the child was just killed.
func (s *Session) Reap() {
	if s.cmd != nil {
		_ = s.cmd.Wait()
	}
}

// Output returns the accumulated CGI stdout/stderr bytes.
func (s *Session) Output() []byte {
	return s.output.Bytes()
}

// CancelReason returns the message set when OnStdoutReadable cancels the
// session for an output-size overrun, and whether one occurred.
func (s *Session) CancelReason() (string, bool) {
	return s.cancelMsg, s.canceled
}

// PID returns the child process id, used for logging.
func (s *Session) PID() int {
	return s.pid
}

// teardown removes both fds from the poller and the side maps and closes
// the pipe ends, without reaping — used for pre-start failures where the
// child was never fully registered.
func (m *Manager) teardown(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.StdoutFd)
	delete(m.stdinToFd, s.StdinFd)
	m.mu.Unlock()

	_ = m.poller.Remove(s.StdoutFd)
	_ = m.poller.Remove(s.StdinFd)
	_ = s.stdoutFile.Close()
	if s.StdinFd >= 0 {
		_ = s.stdinFile.Close()
	}
}

// Finalize tears the session down: closes and deregisters both fds, reaps
// the child, and removes the session from the slab. Grounded on spec.md
// §4.I "Handoff"/"Reap + parse".
func (m *Manager) Finalize(s *Session) {
	if s.done {
		return
	}
	s.done = true

	s.closeStdin(m)

	m.mu.Lock()
	delete(m.sessions, s.StdoutFd)
	m.mu.Unlock()
	_ = m.poller.Remove(s.StdoutFd)
	_ = s.stdoutFile.Close()

	s.Reap()
}

// Sweep returns the sessions that have exceeded the 30s timeout, grounded
// on spec.md §4.K step 2's once-per-second sweep. The caller is
// responsible for killing, finalising, and responding 504 for each.
func (m *Manager) Sweep(now time.Time) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []*Session
	for _, s := range m.sessions {
		if !s.done && s.Expired(now) {
			expired = append(expired, s)
		}
	}
	return expired
}
