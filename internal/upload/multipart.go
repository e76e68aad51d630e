// Package upload implements the multipart/form-data and raw upload
// handling described in spec.md §1(d) and §4.H. Grounded on
// original_source/src/UploadHandler.cpp.
package upload

import (
	"strings"
)

// Part is one section of a multipart/form-data body.
type Part struct {
	Headers     map[string]string
	Name        string
	Filename    string
	ContentType string
	IsFile      bool
	Data        []byte
}

const maxFilesPerUpload = 100

// IsUploadRequest reports whether a POST request carries an upload body,
// grounded on UploadHandler::isUploadRequest.
func IsUploadRequest(method, contentType string) bool {
	if method != "POST" || contentType == "" {
		return false
	}
	lower := strings.ToLower(contentType)
	return strings.Contains(lower, "multipart/form-data") || strings.Contains(lower, "application/octet-stream")
}

// IsMultipartRequest reports whether contentType names multipart/form-data.
func IsMultipartRequest(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "multipart/form-data")
}

// GetContentType strips any ";..." parameters from a Content-Type header,
// grounded on UploadHandler::getContentType.
func GetContentType(header string) string {
	if idx := strings.IndexByte(header, ';'); idx >= 0 {
		return strings.TrimRight(header[:idx], " \t")
	}
	return header
}

// ExtractBoundary pulls the boundary= parameter out of a Content-Type
// header, handling both quoted and unquoted forms, grounded on
// UploadHandler::extractBoundary.
func ExtractBoundary(contentType string) string {
	lower := strings.ToLower(contentType)
	idx := strings.Index(lower, "boundary=")
	if idx < 0 {
		return ""
	}
	valueStart := idx + len("boundary=")
	if valueStart >= len(contentType) {
		return ""
	}

	if contentType[valueStart] == '"' {
		end := strings.IndexByte(contentType[valueStart+1:], '"')
		if end < 0 {
			return ""
		}
		return contentType[valueStart+1 : valueStart+1+end]
	}

	rest := contentType[valueStart:]
	end := strings.IndexAny(rest, "; \t")
	if end < 0 {
		return rest
	}
	return rest[:end]
}

// parseContentDisposition extracts name="" and filename="" from a
// Content-Disposition value, grounded on
// UploadHandler::parseContentDisposition.
func parseContentDisposition(header string) (name, filename string) {
	if idx := strings.Index(header, `name="`); idx >= 0 {
		start := idx + len(`name="`)
		if end := strings.IndexByte(header[start:], '"'); end >= 0 {
			name = header[start : start+end]
		}
	}
	if idx := strings.Index(header, `filename="`); idx >= 0 {
		start := idx + len(`filename="`)
		if end := strings.IndexByte(header[start:], '"'); end >= 0 {
			filename = header[start : start+end]
		}
	}
	return name, filename
}

func parsePartHeaders(headerSection string) Part {
	part := Part{Headers: map[string]string{}}

	for _, line := range strings.Split(headerSection, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		name := strings.ToLower(line[:colon])
		value := strings.TrimLeft(line[colon+1:], " \t")
		part.Headers[name] = value

		switch name {
		case "content-disposition":
			part.Name, part.Filename = parseContentDisposition(value)
			part.IsFile = part.Filename != ""
		case "content-type":
			part.ContentType = value
		}
	}
	return part
}

// ParseMultipart splits body into parts using boundary, grounded on
// UploadHandler::parseMultipart's manual scan (no more than
// maxFilesPerUpload parts are collected).
func ParseMultipart(body []byte, boundary string) ([]Part, bool) {
	if boundary == "" {
		return nil, false
	}

	delimiter := "--" + boundary
	data := string(body)

	pos := strings.Index(data, delimiter)
	if pos < 0 {
		return nil, false
	}
	pos += len(delimiter)
	if pos < len(data) && data[pos] == '\r' {
		pos++
	}
	if pos < len(data) && data[pos] == '\n' {
		pos++
	}

	var parts []Part
	for pos < len(data) && len(parts) < maxFilesPerUpload {
		next := strings.Index(data[pos:], delimiter)
		if next < 0 {
			break
		}
		next += pos

		partContent := data[pos:next]
		if strings.HasSuffix(partContent, "\r\n") {
			partContent = partContent[:len(partContent)-2]
		}

		headerEnd := strings.Index(partContent, "\r\n\r\n")
		sepLen := 4
		if headerEnd < 0 {
			headerEnd = strings.Index(partContent, "\n\n")
			sepLen = 2
			if headerEnd < 0 {
				pos = next + len(delimiter)
				continue
			}
		}

		headerSection := partContent[:headerEnd]
		bodyStart := headerEnd + sepLen
		var partBody string
		if bodyStart < len(partContent) {
			partBody = partContent[bodyStart:]
		}

		part := parsePartHeaders(headerSection)
		part.Data = []byte(partBody)
		parts = append(parts, part)

		pos = next + len(delimiter)
		if pos+2 <= len(data) && data[pos:pos+2] == "--" {
			break
		}
		if pos < len(data) && data[pos] == '\r' {
			pos++
		}
		if pos < len(data) && data[pos] == '\n' {
			pos++
		}
	}

	return parts, len(parts) > 0
}
