package fileserver

import "fmt"

// statusTexts mirrors FileServer::getStatusText.
var statusTexts = map[int]string{
	200: "OK", 201: "Created", 204: "No Content",
	301: "Moved Permanently", 302: "Found", 303: "See Other", 304: "Not Modified",
	307: "Temporary Redirect", 308: "Permanent Redirect",
	400: "Bad Request", 401: "Unauthorized", 403: "Forbidden", 404: "Not Found",
	405: "Method Not Allowed", 408: "Request Timeout", 409: "Conflict", 410: "Gone",
	411: "Length Required", 413: "Payload Too Large", 414: "URI Too Long",
	415: "Unsupported Media Type", 429: "Too Many Requests",
	500: "Internal Server Error", 501: "Not Implemented", 502: "Bad Gateway",
	503: "Service Unavailable", 504: "Gateway Timeout", 505: "HTTP Version Not Supported",
}

// StatusText returns the reason phrase for code, or "Unknown".
func StatusText(code int) string {
	if text, ok := statusTexts[code]; ok {
		return text
	}
	return "Unknown"
}

// GenerateErrorPage renders the built-in HTML error page, grounded on
// FileServer::generateErrorPage.
func GenerateErrorPage(code int, message string) string {
	statusText := StatusText(code)
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>%d %s</title>
  <style>
    body {
      font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
      display: flex;
      justify-content: center;
      align-items: center;
      min-height: 100vh;
      margin: 0;
      background-color: #f5f5f5;
    }
    .container {
      text-align: center;
      padding: 40px;
      background: white;
      border-radius: 8px;
      box-shadow: 0 2px 10px rgba(0,0,0,0.1);
    }
    h1 { font-size: 72px; margin: 0; color: #333; }
    h2 { color: #666; margin: 10px 0 20px; }
    p { color: #888; margin: 0; }
    hr { border: none; border-top: 1px solid #eee; margin: 20px 0; }
    .server { color: #aaa; font-size: 12px; }
  </style>
</head>
<body>
  <div class="container">
    <h1>%d</h1>
    <h2>%s</h2>
    <p>%s</p>
    <hr>
    <p class="server">webserv</p>
  </div>
</body>
</html>
`, code, statusText, code, htmlEscape(statusText), htmlEscape(message))
}
