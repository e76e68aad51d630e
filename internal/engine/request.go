package engine

import (
	"strings"
	"time"

	"github.com/School42/webserv/internal/cgi"
	"github.com/School42/webserv/internal/conn"
	"github.com/School42/webserv/internal/fileserver"
	"github.com/School42/webserv/internal/response"
	"github.com/School42/webserv/internal/router"
	"github.com/School42/webserv/internal/upload"
)

// processRequest turns a connection's just-parsed request into a response,
// grounded on original_source/src/Server.cpp::processRequest's branching:
// route miss, redirect, upload, CGI, DELETE, then static fallback.
func (e *Engine) processRequest(c *conn.Connection) {
	req := c.Request
	result := e.router.Route(req.Host(), c.ListenPort, req.Method, req.Path)

	if !result.Matched {
		e.respondRouteMiss(c, result)
		return
	}

	if result.Location != nil && result.Location.HasRedirect() {
		code, url := router.Redirect(result.Location)
		e.sendAndClose(c, response.Redirect(code, fileserver.StatusText(code), url))
		return
	}

	if upload.IsUploadRequest(req.Method, req.Headers.Get("content-type")) {
		e.dispatchUpload(c, result)
		return
	}

	if router.IsCGIRequest(result.Location, req.Path) {
		e.dispatchCGI(c, result)
		return
	}

	if req.Method == "DELETE" {
		e.dispatchFileResult(c, fileserver.DeleteFile(result.ResolvedPath))
		return
	}

	e.dispatchFileResult(c, fileserver.ServeFile(req.Path, result.ResolvedPath, result.Location))
}

// respondRouteMiss turns a router.Result's ErrorCode into a rendered error
// page, using the matched server's custom error_page directives when one
// was found before the match failed (a 405 still knows its server).
func (e *Engine) respondRouteMiss(c *conn.Connection, result router.Result) {
	if result.Server != nil {
		e.dispatchFileResult(c, fileserver.ServeErrorPage(result.Server, result.ErrorCode))
		return
	}
	e.sendAndClose(c, response.Error(result.ErrorCode, fileserver.StatusText(result.ErrorCode), fileserver.GenerateErrorPage(result.ErrorCode, result.ErrorMessage)))
}

// dispatchFileResult converts a fileserver.Result (static serve, delete, or
// error page) into a wire response. A 301 directory redirect goes out through
// response.Redirect with the result's own status and path.
func (e *Engine) dispatchFileResult(c *conn.Connection, result fileserver.Result) {
	if result.RedirectPath != "" {
		e.sendResponse(c, response.Redirect(result.StatusCode, result.StatusText, result.RedirectPath))
		return
	}

	r := response.Response{
		StatusCode:  result.StatusCode,
		StatusText:  result.StatusText,
		ContentType: result.ContentType,
		Body:        result.Body,
		KeepAlive:   result.Success,
	}
	if result.Success {
		e.sendResponse(c, r)
	} else {
		e.sendAndClose(c, r)
	}
}

func (e *Engine) dispatchUpload(c *conn.Connection, result router.Result) {
	headers := map[string]string{}
	for name, value := range c.Request.Headers {
		headers[name] = value
	}

	u := upload.HandleUpload(c.Request.Method, c.Request.Headers.Get("content-type"), c.Request.Body, headers, result.Location, time.Now())

	r := response.Response{
		StatusCode:  u.StatusCode,
		StatusText:  u.StatusText,
		ContentType: u.ContentType,
		Body:        u.Body,
		KeepAlive:   u.Success,
	}
	if u.Success {
		e.sendResponse(c, r)
	} else {
		e.sendAndClose(c, r)
	}
}

// dispatchCGI starts a CGI child for the matched location. A synchronous
// failure (missing script, bad interpreter, fork failure) responds
// immediately; otherwise the connection stays in Processing until the
// event loop's stdout dispatch finalises the session.
func (e *Engine) dispatchCGI(c *conn.Connection, result router.Result) {
	req := c.Request
	info := cgi.RequestInfo{
		Method:      req.Method,
		URI:         req.URI,
		Path:        req.Path,
		Query:       req.Query,
		HTTPVersion: req.HTTPVersion,
		Host:        req.Host(),
		Headers:     req.Headers,
		Body:        req.Body,
		ClientIP:    c.ClientIP,
		ClientPort:  c.ClientPort,
		ServerPort:  c.ListenPort,
	}

	documentRoot := strings.TrimSuffix(result.Location.Root, "/")
	owner := cgi.ConnHandle{Index: uint32(c.Fd), Generation: c.Generation}

	_, syncErr := cgi.Start(e.cgiMgr, owner, result.ResolvedPath, result.Location, info, documentRoot)
	if syncErr != nil {
		e.sendAndClose(c, response.Error(syncErr.StatusCode, syncErr.StatusText, fileserver.GenerateErrorPage(syncErr.StatusCode, syncErr.ErrorMessage)))
		return
	}
	c.State = conn.Processing
}
