// Package fileserver implements static file serving, directory listing,
// custom/default error pages, and file deletion, described in spec.md
// §4.G. Grounded on original_source/src/FileServer.cpp.
package fileserver

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/School42/webserv/internal/config"
	"github.com/School42/webserv/internal/logging"
)

var log = logging.For("fileserver")

const maxFileSize = 100 * 1024 * 1024

// Result is the outcome of a file-serving operation, ready for
// internal/response to serialise.
type Result struct {
	Success      bool
	StatusCode   int
	StatusText   string
	ContentType  string
	Body         []byte
	RedirectPath string
	IsDirectory  bool
	ErrorMessage string
}

func errorResult(code int, message string) Result {
	return Result{
		StatusCode:   code,
		StatusText:   StatusText(code),
		ContentType:  "text/html",
		Body:         []byte(GenerateErrorPage(code, message)),
		ErrorMessage: message,
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isDirectory(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isReadable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().Perm()&0o444 != 0
}

func readFile(path string) ([]byte, bool) {
	info, err := os.Stat(path)
	if err != nil || info.Size() > maxFileSize {
		return nil, false
	}
	data, err := os.ReadFile(path)
	return data, err == nil
}

func findIndexFile(dirPath string, indexFiles []string) string {
	for _, name := range indexFiles {
		candidate := strings.TrimSuffix(dirPath, "/") + "/" + name
		if fileExists(candidate) && !isDirectory(candidate) {
			return candidate
		}
	}
	return ""
}

// ServeFile resolves a matched route to a Result, grounded on
// FileServer::serveFile: existence check, directory handling
// (trailing-slash redirect, index lookup, autoindex fallback), readability,
// size ceiling, then a full read.
func ServeFile(requestPath, resolvedPath string, location *config.LocationConfig) Result {
	filePath := resolvedPath

	if !fileExists(filePath) {
		return errorResult(404, "file not found: "+requestPath)
	}

	if isDirectory(filePath) {
		if requestPath == "" || requestPath[len(requestPath)-1] != '/' {
			return Result{StatusCode: 301, StatusText: StatusText(301), RedirectPath: requestPath + "/"}
		}

		if indexPath := findIndexFile(filePath, location.Index); indexPath != "" {
			filePath = indexPath
		} else if location.Autoindex {
			return GenerateDirectoryListing(filePath, requestPath)
		} else {
			return errorResult(403, "directory listing not allowed")
		}
	}

	if !isReadable(filePath) {
		return errorResult(403, "permission denied")
	}

	info, err := os.Stat(filePath)
	if err != nil {
		log.Errorf("stat %s: %v", filePath, err)
		return errorResult(500, "failed to stat file")
	}
	if info.Size() > maxFileSize {
		return errorResult(413, "file too large to serve")
	}

	content, ok := readFile(filePath)
	if !ok {
		log.Errorf("read %s failed", filePath)
		return errorResult(500, "failed to read file")
	}

	return Result{
		Success:     true,
		StatusCode:  200,
		StatusText:  "OK",
		ContentType: MimeType(filePath),
		Body:        content,
	}
}

// ServeFilePath serves a single file directly, used for custom error pages
// once resolved to a path. Grounded on FileServer::serveFilePath.
func ServeFilePath(filePath string) Result {
	if !fileExists(filePath) {
		return errorResult(404, "file not found")
	}
	if isDirectory(filePath) {
		return errorResult(403, "cannot serve directory")
	}
	if !isReadable(filePath) {
		return errorResult(403, "permission denied")
	}
	content, ok := readFile(filePath)
	if !ok {
		return errorResult(500, "failed to read file")
	}
	return Result{Success: true, StatusCode: 200, StatusText: "OK", ContentType: MimeType(filePath), Body: content}
}

// ServeErrorPage resolves a server's configured custom error page, falling
// back to the built-in generated page. When the server sets a root, the
// error_page URI is joined to it whether relative or absolute-looking, per
// the original's quirk; without a root the URI is used as a path as given.
// Grounded on FileServer::serveErrorPage.
func ServeErrorPage(server *config.ServerConfig, code int) Result {
	if uri, ok := server.ErrorPages[code]; ok {
		errorPagePath := uri
		if server.RootSet {
			if strings.HasPrefix(uri, "/") {
				errorPagePath = server.Root + uri
			} else {
				errorPagePath = server.Root + "/" + uri
			}
		}

		if fileExists(errorPagePath) && !isDirectory(errorPagePath) && isReadable(errorPagePath) {
			if content, ok := readFile(errorPagePath); ok {
				return Result{
					Success:     true,
					StatusCode:  code,
					StatusText:  StatusText(code),
					ContentType: MimeType(errorPagePath),
					Body:        content,
				}
			}
		}
	}

	return Result{
		Success:     true,
		StatusCode:  code,
		StatusText:  StatusText(code),
		ContentType: "text/html",
		Body:        []byte(GenerateErrorPage(code, StatusText(code))),
	}
}

// DeleteFile implements the DELETE method (spec.md §1(d)). Not present in
// original_source/src/FileServer.cpp — FileServer::deleteFile is declared
// but its body was not part of the retrieved source — so this follows the
// file-serving error conventions established by the rest of the package.
func DeleteFile(resolvedPath string) Result {
	if !fileExists(resolvedPath) {
		return errorResult(404, "file not found")
	}
	if isDirectory(resolvedPath) {
		return errorResult(403, "cannot delete a directory")
	}
	if err := os.Remove(resolvedPath); err != nil {
		if os.IsPermission(err) {
			return errorResult(403, "permission denied")
		}
		log.Errorf("delete %s: %v", resolvedPath, err)
		return errorResult(500, "failed to delete file")
	}
	log.Infof("deleted %s", resolvedPath)
	return Result{Success: true, StatusCode: 204, StatusText: StatusText(204)}
}

// GenerateDirectoryListing renders an HTML index of dirPath, sorted
// alphabetically with "." skipped, ".." kept. Grounded on
// FileServer::generateDirectoryListing.
func GenerateDirectoryListing(dirPath, requestURI string) Result {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		log.Errorf("read dir %s: %v", dirPath, err)
		return errorResult(500, "failed to open directory")
	}

	names := make([]string, 0, len(entries)+1)
	names = append(names, "..")
	for _, e := range entries {
		if e.Name() == "." {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n  <meta charset=\"UTF-8\">\n")
	fmt.Fprintf(&b, "  <title>Index of %s</title>\n", htmlEscape(requestURI))
	b.WriteString("  <style>\n    body { font-family: monospace; margin: 20px; }\n")
	b.WriteString("    h1 { border-bottom: 1px solid #ccc; padding-bottom: 10px; }\n")
	b.WriteString("    table { border-collapse: collapse; width: 100%; }\n")
	b.WriteString("    th, td { text-align: left; padding: 8px; }\n")
	b.WriteString("    th { background-color: #f0f0f0; }\n")
	b.WriteString("    tr:nth-child(even) { background-color: #f9f9f9; }\n")
	b.WriteString("    tr:hover { background-color: #e0e0e0; }\n")
	b.WriteString("    a { text-decoration: none; color: #0066cc; }\n")
	b.WriteString("    a:hover { text-decoration: underline; }\n")
	b.WriteString("    .dir { font-weight: bold; }\n    .size { text-align: right; }\n  </style>\n</head>\n<body>\n")
	fmt.Fprintf(&b, "  <h1>Index of %s</h1>\n", htmlEscape(requestURI))
	b.WriteString("  <table>\n    <tr><th>Name</th><th>Size</th><th>Last Modified</th></tr>\n")

	for _, name := range names {
		fullPath := strings.TrimSuffix(dirPath, "/") + "/" + name
		isDir := name == ".." || isDirectory(fullPath)

		displayName, link := name, name
		if isDir && name != ".." {
			displayName += "/"
			link += "/"
		}

		sizeStr, timeStr := "-", "-"
		if info, err := os.Stat(fullPath); err == nil {
			if !isDir {
				sizeStr = formatSize(info.Size())
			}
			timeStr = info.ModTime().UTC().Format("2006-01-02 15:04")
		}

		class := ""
		if isDir {
			class = " class=\"dir\""
		}
		fmt.Fprintf(&b, "    <tr>\n      <td><a href=\"%s\"%s>%s</a></td>\n      <td class=\"size\">%s</td>\n      <td>%s</td>\n    </tr>\n",
			htmlEscape(link), class, htmlEscape(displayName), sizeStr, timeStr)
	}

	b.WriteString("  </table>\n  <hr>\n  <p><em>webserv</em></p>\n</body>\n</html>\n")

	return Result{Success: true, StatusCode: 200, StatusText: "OK", ContentType: "text/html", Body: []byte(b.String()), IsDirectory: true}
}

func formatSize(size int64) string {
	switch {
	case size < 1024:
		return fmt.Sprintf("%d B", size)
	case size < 1024*1024:
		return fmt.Sprintf("%d KB", size/1024)
	case size < 1024*1024*1024:
		return fmt.Sprintf("%d MB", size/(1024*1024))
	default:
		return fmt.Sprintf("%d GB", size/(1024*1024*1024))
	}
}

func htmlEscape(s string) string {
	replacer := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&#39;")
	return replacer.Replace(s)
}
