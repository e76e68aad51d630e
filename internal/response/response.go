// Package response implements spec.md §4.J: the outgoing HTTP response
// builder and its status/header/Content-Length serialisation. Grounded on
// the byte-append style of buildResponse in the teacher's http.go.
package response

import "strconv"

// Response holds everything needed to serialise an HTTP/1.1 response.
type Response struct {
	StatusCode  int
	StatusText  string
	ContentType string
	Body        []byte
	KeepAlive   bool
	Headers     []Header // additional headers, in insertion order
}

// Header is one ordered extra response header.
type Header struct {
	Name  string
	Value string
}

// OK builds a 200 response, grounded on buildResponse's line200 branch.
func OK(body []byte, contentType string) Response {
	return Response{StatusCode: 200, StatusText: "OK", ContentType: contentType, Body: body, KeepAlive: true}
}

// Created builds a 201 response for successful uploads.
func Created(body []byte, contentType string) Response {
	return Response{StatusCode: 201, StatusText: "Created", ContentType: contentType, Body: body, KeepAlive: true}
}

// NoContent builds a 204 response for a successful DELETE.
func NoContent() Response {
	return Response{StatusCode: 204, StatusText: "No Content", KeepAlive: true}
}

// Redirect builds a 3xx response with a Location header, text/html body,
// and the connection closed — grounded on spec.md §4.J's Redirect factory.
func Redirect(code int, statusText, location string) Response {
	body := []byte("<html><body>Redirecting to <a href=\"" + location + "\">" + location + "</a></body></html>")
	return Response{
		StatusCode:  code,
		StatusText:  statusText,
		ContentType: "text/html",
		Body:        body,
		KeepAlive:   false,
		Headers:     []Header{{Name: "Location", Value: location}},
	}
}

// Error builds a closed-connection response with a canonical HTML error
// body, grounded on spec.md §4.J's Error factory.
func Error(code int, statusText, htmlBody string) Response {
	return Response{
		StatusCode:  code,
		StatusText:  statusText,
		ContentType: "text/html",
		Body:        []byte(htmlBody),
		KeepAlive:   false,
	}
}

// WithHeader appends an additional header and returns the response for
// chaining.
func (r Response) WithHeader(name, value string) Response {
	r.Headers = append(r.Headers, Header{Name: name, Value: value})
	return r
}

// Serialize renders the status line, headers, blank line, and body into
// buf, returning the extended slice — the same append-into-a-reusable-
// buffer pattern as buildResponse in the teacher's http.go.
func Serialize(buf []byte, r Response) []byte {
	buf = append(buf[:0], "HTTP/1.1 "...)
	buf = strconv.AppendInt(buf, int64(r.StatusCode), 10)
	buf = append(buf, ' ')
	buf = append(buf, r.StatusText...)
	buf = append(buf, "\r\n"...)

	contentType := r.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	buf = append(buf, "Content-Type: "...)
	buf = append(buf, contentType...)
	buf = append(buf, "\r\n"...)

	buf = append(buf, "Content-Length: "...)
	buf = strconv.AppendInt(buf, int64(len(r.Body)), 10)
	buf = append(buf, "\r\n"...)

	if r.KeepAlive {
		buf = append(buf, "Connection: keep-alive\r\n"...)
	} else {
		buf = append(buf, "Connection: close\r\n"...)
	}

	for _, h := range r.Headers {
		buf = append(buf, h.Name...)
		buf = append(buf, ": "...)
		buf = append(buf, h.Value...)
		buf = append(buf, "\r\n"...)
	}

	buf = append(buf, "\r\n"...)
	buf = append(buf, r.Body...)

	return buf
}
