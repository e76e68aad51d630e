package engine

import (
	"github.com/School42/webserv/internal/conn"
	"github.com/School42/webserv/internal/epoll"
	"github.com/School42/webserv/internal/fileserver"
	"github.com/School42/webserv/internal/response"
)

// handleConnectionEvent dispatches one readiness event into a
// connection's state machine, grounded on spec.md §4.E.
func (e *Engine) handleConnectionEvent(c *conn.Connection, events epoll.Event) {
	if events&(epoll.Hangup|epoll.ErrorEvent) != 0 {
		e.destroyConnection(c)
		return
	}

	switch c.State {
	case conn.ReadingRequest:
		if events&(epoll.Readable|epoll.PeerClosed) == 0 {
			return
		}
		switch c.OnReadable() {
		case conn.ReadRequestComplete:
			e.processRequest(c)
		case conn.ReadParseFailed:
			code := c.Request.ErrorStatus
			if code == 0 {
				code = 400
			}
			e.sendAndClose(c, response.Error(code, fileserver.StatusText(code), fileserver.GenerateErrorPage(code, c.Request.ErrorMessage)))
		case conn.ReadPeerClosed, conn.ReadIOError:
			e.destroyConnection(c)
		case conn.ReadNeedMore:
			// wait for more Readable events
		}

	case conn.WritingResponse:
		if events&epoll.Writable == 0 {
			return
		}
		switch c.OnWritable() {
		case conn.WriteDone:
			if c.ShouldKeepAlive() {
				c.ResetForKeepAlive()
				_ = e.poller.Modify(c.Fd, epoll.Readable)
			} else {
				e.destroyConnection(c)
			}
		case conn.WriteIOError:
			e.destroyConnection(c)
		case conn.WriteNeedMore:
			// wait for more Writable events
		}

	case conn.Processing:
		// awaiting CGI completion; the CGI dispatch path drives this
		// connection's next transition, not readiness on its own fd.
	}
}

// sendAndClose enqueues a response and marks the connection to close once
// it has drained, used for the synchronous error paths that always
// disable keep-alive per spec.md §4.E/§4.J.
func (e *Engine) sendAndClose(c *conn.Connection, r response.Response) {
	c.KeepAlive = false
	e.sendResponse(c, r)
}

// sendResponse serialises r onto c's write buffer and switches the
// connection + its poller registration to Writable.
func (e *Engine) sendResponse(c *conn.Connection, r response.Response) {
	c.KeepAlive = c.KeepAlive && r.KeepAlive
	buf := response.Serialize(nil, r)
	c.EnqueueResponse(buf)
	if err := e.poller.Modify(c.Fd, epoll.Writable); err != nil {
		log.Errorf("epoll modify to writable: %v", err)
		e.destroyConnection(c)
	}
}
