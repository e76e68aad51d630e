// Package conn implements the per-connection HTTP state machine described
// in spec.md §2 ("Connection") and §4.E. Grounded on RequestCtx and its
// Reset/read/parse/write cycle in the teacher's http.go, generalized from
// a single fixed-shape JSON responder to the full request/response
// lifecycle spec.md §4.E describes.
package conn

import (
	"syscall"
	"time"

	"github.com/School42/webserv/internal/httpparse"
)

// State is one of the five connection states from spec.md §2.
type State int

const (
	ReadingRequest State = iota
	Processing
	WritingResponse
	Done
	Error
)

const (
	maxRequestsPerConnection = 100 // spec.md §6.1 "limit of 100 requests per connection"
	idleTimeout              = 60 * time.Second
	readBufferSize           = 16 * 1024
)

// Connection is the loop's mutable per-client record, grounded on
// RequestCtx in the teacher's http.go.
type Connection struct {
	Fd         int
	ClientIP   string
	ClientPort int
	ListenPort int

	State State

	Request *httpparse.Request

	readBuf    []byte
	readOffset int

	writeBuf    []byte
	writeOffset int

	KeepAlive    bool
	RequestCount int
	LastActivity time.Time

	Generation uint32
}

// New creates a connection ready to read its first request, sized after
// the teacher's 16KiB input/output buffers in RequestCtx.Reset.
func New(fd int, clientIP string, clientPort, listenPort int, maxBodySize int64) *Connection {
	return &Connection{
		Fd:           fd,
		ClientIP:     clientIP,
		ClientPort:   clientPort,
		ListenPort:   listenPort,
		State:        ReadingRequest,
		Request:      httpparse.NewRequest(maxBodySize),
		readBuf:      make([]byte, readBufferSize),
		writeBuf:     make([]byte, 0, readBufferSize),
		KeepAlive:    true,
		LastActivity: time.Now(),
	}
}

// ReadResult reports what happened on a Readable event.
type ReadResult int

const (
	ReadNeedMore ReadResult = iota
	ReadRequestComplete
	ReadParseFailed
	ReadPeerClosed
	ReadIOError
)

// OnReadable drains the socket with repeated syscall.Read calls until
// EAGAIN, feeding each chunk to the incremental parser as it arrives.
// Connection fds are registered edge-triggered, so a single Readable
// event is the only notification a burst that fills the kernel receive
// buffer will ever get; reading until EAGAIN (rather than once per event)
// is grounded on http.go's epollLoop, which looped the same way.
func (c *Connection) OnReadable() ReadResult {
	for {
		if c.readOffset == len(c.readBuf) {
			c.readBuf = append(c.readBuf, make([]byte, len(c.readBuf))...)
		}

		n, err := syscall.Read(c.Fd, c.readBuf[c.readOffset:])
		if err != nil {
			if err == syscall.EAGAIN {
				return ReadNeedMore
			}
			c.State = Error
			return ReadIOError
		}
		if n == 0 {
			c.State = Error
			return ReadPeerClosed
		}

		c.LastActivity = time.Now()
		c.readOffset += n

		consumed, result := c.Request.Parse(c.readBuf[:c.readOffset])
		switch result {
		case httpparse.Incomplete:
			c.compactReadBuffer(consumed)
			// Keep reading: the fd may still have more queued behind what
			// was just consumed, and ET delivers no second wakeup for it.
		case httpparse.Failed:
			c.State = Processing
			return ReadParseFailed
		default: // httpparse.Success
			c.compactReadBuffer(consumed)
			c.State = Processing
			c.KeepAlive = c.Request.KeepAlive()
			c.RequestCount++
			return ReadRequestComplete
		}
	}
}

// compactReadBuffer drops the bytes the parser has already consumed,
// shifting any trailing bytes (the start of a pipelined-but-deferred next
// request) to the front of the buffer.
func (c *Connection) compactReadBuffer(consumed int) {
	remaining := c.readOffset - consumed
	if remaining > 0 {
		copy(c.readBuf, c.readBuf[consumed:c.readOffset])
	}
	c.readOffset = remaining
}

// EnqueueResponse appends serialised response bytes to the write buffer
// and switches to WritingResponse.
func (c *Connection) EnqueueResponse(serialized []byte) {
	c.writeBuf = append(c.writeBuf[:0], serialized...)
	c.writeOffset = 0
	c.State = WritingResponse
}

// WriteResult reports what happened on a Writable event.
type WriteResult int

const (
	WriteNeedMore WriteResult = iota
	WriteDone
	WriteIOError
)

// OnWritable drains the write buffer, grounded on http.go's
// syscall.Write(fd, buf) call, generalized to handle partial writes across
// multiple Writable events instead of assuming one write suffices.
func (c *Connection) OnWritable() WriteResult {
	n, err := syscall.Write(c.Fd, c.writeBuf[c.writeOffset:])
	if err != nil {
		if err == syscall.EAGAIN {
			return WriteNeedMore
		}
		c.State = Error
		return WriteIOError
	}

	c.LastActivity = time.Now()
	c.writeOffset += n
	if c.writeOffset < len(c.writeBuf) {
		return WriteNeedMore
	}
	return WriteDone
}

// ShouldKeepAlive reports whether the connection should be reset for
// another request rather than destroyed, grounded on spec.md §4.E's
// WritingResponse transition.
func (c *Connection) ShouldKeepAlive() bool {
	return c.KeepAlive && c.RequestCount < maxRequestsPerConnection
}

// ResetForKeepAlive puts the connection back into ReadingRequest with a
// fresh parser, mirroring RequestCtx.Reset's in-place buffer reuse.
func (c *Connection) ResetForKeepAlive() {
	c.Request.Reset()
	c.writeBuf = c.writeBuf[:0]
	c.writeOffset = 0
	c.State = ReadingRequest
}

// IsIdleTimedOut reports whether now is past the 60s idle ceiling from
// spec.md §6.1, used by the once-per-second sweep.
func (c *Connection) IsIdleTimedOut(now time.Time) bool {
	return now.Sub(c.LastActivity) > idleTimeout
}
