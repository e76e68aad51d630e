package cgi

import (
	"strconv"
	"strings"
)

// ParsedOutput is a CGI child's stdout, split into status/headers/body.
type ParsedOutput struct {
	StatusCode int
	StatusText string
	Headers    map[string]string
	Body       []byte
}

// ParseOutput splits output into a header block (ended by CRLFCRLF or
// LFLF) and a body, interpreting the Status/Content-Type/Location headers
// specially. A missing header block is not an error: the entire output
// becomes the body with a default 200/text-html. Grounded on
// CgiHandler::parseCgiOutput.
func ParseOutput(output []byte) ParsedOutput {
	result := ParsedOutput{StatusCode: 200, StatusText: "OK", Headers: map[string]string{}}

	text := string(output)
	headerEnd := strings.Index(text, "\r\n\r\n")
	sepLen := 4
	if headerEnd < 0 {
		headerEnd = strings.Index(text, "\n\n")
		sepLen = 2
	}
	if headerEnd < 0 {
		result.Body = output
		return result
	}

	headerSection := text[:headerEnd]
	result.Body = []byte(text[headerEnd+sepLen:])
	statusSeen := false

	for _, line := range strings.Split(headerSection, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		name := line[:colon]
		value := strings.TrimLeft(line[colon+1:], " \t")
		lowerName := strings.ToLower(name)

		switch lowerName {
		case "status":
			code, text, ok := splitStatusValue(value)
			if ok {
				statusSeen = true
				result.StatusCode = code
				if text != "" {
					result.StatusText = text
				}
			}
		case "content-type":
			result.Headers["Content-Type"] = value
		case "location":
			result.Headers["Location"] = value
			if !statusSeen {
				result.StatusCode = 302
				result.StatusText = "Found"
			}
		default:
			result.Headers[name] = value
		}
	}

	return result
}

func splitStatusValue(value string) (code int, text string, ok bool) {
	i := 0
	for i < len(value) && (value[i] == ' ' || value[i] == '\t') {
		i++
	}
	start := i
	for i < len(value) && value[i] >= '0' && value[i] <= '9' {
		i++
	}
	if i == start {
		return 0, "", false
	}
	n, err := strconv.Atoi(value[start:i])
	if err != nil {
		return 0, "", false
	}
	for i < len(value) && (value[i] == ' ' || value[i] == '\t') {
		i++
	}
	return n, value[i:], true
}

// ContentType returns the parsed Content-Type header, defaulting to
// text/html when the CGI script didn't set one.
func (p ParsedOutput) ContentType() string {
	if ct, ok := p.Headers["Content-Type"]; ok {
		return ct
	}
	return "text/html"
}
