package engine

import (
	"github.com/School42/webserv/internal/cgi"
	"github.com/School42/webserv/internal/conn"
	"github.com/School42/webserv/internal/epoll"
	"github.com/School42/webserv/internal/fileserver"
	"github.com/School42/webserv/internal/response"
)

// handleCGIStdin pumps the next slice of the request body into a CGI
// child's stdin, grounded on spec.md §4.I's I/O pump.
func (e *Engine) handleCGIStdin(session *cgi.Session, events epoll.Event) {
	if events&epoll.Writable == 0 {
		return
	}
	if err := cgi.OnStdinWritable(e.cgiMgr, session); err != nil {
		log.Errorf("CGI stdin write [%s] (pid %d): %v", session.TraceID, session.PID(), err)
	}
}

// handleCGIStdout drains one readiness event's worth of CGI output and, on
// EOF or an output-size overrun, finalises the session and responds on its
// owning connection.
func (e *Engine) handleCGIStdout(session *cgi.Session, events epoll.Event) {
	if events&(epoll.Readable|epoll.PeerClosed|epoll.Hangup) == 0 {
		return
	}

	eof, overLimit := cgi.OnStdoutReadable(session)
	if overLimit {
		log.Warnf("CGI session [%s] pid=%d exceeded the output size limit", session.TraceID, session.PID())
		session.Kill()
		e.finalizeCGI(session, 502, "Bad Gateway", "CGI output exceeded the size limit")
		return
	}
	if eof {
		log.Infof("CGI session [%s] pid=%d finished", session.TraceID, session.PID())
		e.finalizeCGI(session, 0, "", "")
	}
}

// finalizeCGI reaps session and delivers its result to the connection that
// started it, resolved through the owner's generational handle so a
// connection destroyed mid-flight (client disconnect, idle timeout) is
// silently dropped instead of writing into a reused fd. statusCode/text/
// message override the parsed CGI output for a forced outcome (timeout,
// output overrun); pass 0 to use whatever the script itself produced.
func (e *Engine) finalizeCGI(session *cgi.Session, statusCode int, statusText, message string) {
	output := session.Output()
	e.cgiMgr.Finalize(session)

	c, ok := e.resolveOwner(session.Owner)
	if !ok {
		return
	}

	var r response.Response
	switch {
	case statusCode != 0:
		r = response.Error(statusCode, statusText, fileserver.GenerateErrorPage(statusCode, message))
	default:
		if reason, canceled := session.CancelReason(); canceled {
			r = response.Error(502, "Bad Gateway", fileserver.GenerateErrorPage(502, reason))
		} else {
			r = cgiResponse(output)
		}
	}

	e.sendResponse(c, r)
}

// cgiResponse turns a CGI child's raw stdout into a wire response, grounded
// on spec.md §4.I's "Reap + parse" step.
func cgiResponse(output []byte) response.Response {
	parsed := cgi.ParseOutput(output)
	r := response.Response{
		StatusCode:  parsed.StatusCode,
		StatusText:  parsed.StatusText,
		ContentType: parsed.ContentType(),
		Body:        parsed.Body,
		KeepAlive:   true,
	}
	for name, value := range parsed.Headers {
		if name == "Content-Type" {
			continue
		}
		r = r.WithHeader(name, value)
	}
	return r
}

// resolveOwner validates a CGI session's weak connection reference against
// the live generation table, grounded on spec.md §9's redesign-flag
// recommendation to avoid raw pointers across the async CGI boundary.
func (e *Engine) resolveOwner(owner cgi.ConnHandle) (*conn.Connection, bool) {
	fd := int(owner.Index)
	c, ok := e.connections[fd]
	if !ok {
		return nil, false
	}
	if e.generations[fd] != owner.Generation || c.Generation != owner.Generation {
		return nil, false
	}
	return c, true
}
