package upload

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nu7hatch/gouuid"

	"github.com/School42/webserv/internal/config"
	"github.com/School42/webserv/internal/logging"
)

var log = logging.For("upload")

const maxFilenameLength = 255

// Result is the outcome of an upload, ready for internal/response to
// serialise.
type Result struct {
	Success      bool
	StatusCode   int
	StatusText   string
	ContentType  string
	Body         []byte
	ErrorMessage string
	SavedPaths   []string
}

// SanitizeFilename strips directory components and restricts the remaining
// characters to alnum/./-/_, mapping spaces to underscores, prefixing a
// leading dot, and falling back to "unnamed" for an empty result. Grounded
// on UploadHandler::sanitizeFilename.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	sanitized := b.String()

	if strings.HasPrefix(sanitized, ".") {
		sanitized = "_" + sanitized
	}
	if sanitized == "" {
		sanitized = "unnamed"
	}
	if len(sanitized) > maxFilenameLength {
		sanitized = sanitized[:maxFilenameLength]
	}
	return sanitized
}

// GenerateUniqueFilename returns a name for a new file in dir. It tries the
// plain name, then a timestamp-suffixed name, then timestamp+counter
// (1..999), each checked against dir, falling back to a uuid-derived suffix
// that is not checked against dir. The original uses rand() for the final fallback; this port uses
// github.com/nu7hatch/gouuid instead. Grounded on
// UploadHandler::generateUniqueFilename.
func GenerateUniqueFilename(dir, name string, now time.Time) string {
	candidate := filepath.Join(dir, name)
	if _, err := os.Stat(candidate); err != nil {
		return name
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	timestamp := now.Unix()

	stamped := fmt.Sprintf("%s_%d%s", base, timestamp, ext)
	if _, err := os.Stat(filepath.Join(dir, stamped)); err != nil {
		return stamped
	}

	for counter := 1; counter <= 999; counter++ {
		candidateName := fmt.Sprintf("%s_%d_%d%s", base, timestamp, counter, ext)
		if _, err := os.Stat(filepath.Join(dir, candidateName)); err != nil {
			return candidateName
		}
	}

	id, err := uuid.NewV4()
	suffix := strconv.FormatInt(timestamp, 36)
	if err == nil {
		suffix = strings.ReplaceAll(id.String(), "-", "")[:8]
	}
	return fmt.Sprintf("%s_%s%s", base, suffix, ext)
}

func isWritableDirectory(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0o200 != 0
}

func ensureDirectory(dir string) error {
	if isWritableDirectory(dir) {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func saveFile(dir, filename string, data []byte) (string, error) {
	if err := ensureDirectory(dir); err != nil {
		return "", err
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func errorResult(code int, message string) Result {
	return Result{
		StatusCode:   code,
		StatusText:   statusText(code),
		ContentType:  "text/html",
		Body:         []byte(GenerateUploadResponse(false, nil, message)),
		ErrorMessage: message,
	}
}

func statusText(code int) string {
	switch code {
	case 201:
		return "Created"
	case 400:
		return "Bad Request"
	case 413:
		return "Payload Too Large"
	case 415:
		return "Unsupported Media Type"
	case 500:
		return "Internal Server Error"
	default:
		return "Unknown"
	}
}

// resolveUploadDir applies the upload_store-or-root/uploads fallback,
// grounded on UploadHandler::handleUpload's directory resolution.
func resolveUploadDir(location *config.LocationConfig) string {
	if location.UploadStore != "" {
		return location.UploadStore
	}
	return strings.TrimSuffix(location.Root, "/") + "/uploads"
}

// HandleUpload dispatches a POST body to either the multipart or raw
// octet-stream save path, grounded on UploadHandler::handleUpload.
func HandleUpload(method, contentType string, body []byte, headers map[string]string, location *config.LocationConfig, now time.Time) Result {
	if method != "POST" {
		return errorResult(405, "uploads must use POST")
	}
	if contentType == "" {
		return errorResult(400, "Content-Type header is required")
	}
	if int64(len(body)) > location.ClientMaxBodySize {
		log.Warnf("upload of %d bytes exceeds client_max_body_size %d", len(body), location.ClientMaxBodySize)
		return errorResult(413, "upload exceeds client_max_body_size")
	}

	uploadDir := resolveUploadDir(location)

	if IsMultipartRequest(contentType) {
		boundary := ExtractBoundary(contentType)
		parts, ok := ParseMultipart(body, boundary)
		if !ok {
			log.Warnf("malformed multipart body, boundary=%q", boundary)
			return errorResult(400, "malformed multipart body")
		}

		var saved []string
		for _, part := range parts {
			if !part.IsFile {
				continue
			}
			name := SanitizeFilename(part.Filename)
			unique := GenerateUniqueFilename(uploadDir, name, now)
			path, err := saveFile(uploadDir, unique, part.Data)
			if err != nil {
				log.Errorf("save %s: %v", unique, err)
				return errorResult(500, "failed to save uploaded file")
			}
			saved = append(saved, path)
		}
		log.Infof("saved %d file part(s) to %s", len(saved), uploadDir)

		// Zero file parts is not an error: an all-field, no-file multipart
		// body still succeeds with an empty saved list.
		return Result{
			Success:     true,
			StatusCode:  201,
			StatusText:  "Created",
			ContentType: "text/html",
			Body:        []byte(GenerateUploadResponse(true, saved, "")),
			SavedPaths:  saved,
		}
	}

	// application/octet-stream branch: the filename comes from an
	// X-Filename header, defaulting to a generic name.
	filename := headers["x-filename"]
	if filename == "" {
		filename = "upload.bin"
	}
	name := SanitizeFilename(filename)
	unique := GenerateUniqueFilename(uploadDir, name, now)
	path, err := saveFile(uploadDir, unique, body)
	if err != nil {
		log.Errorf("save %s: %v", unique, err)
		return errorResult(500, "failed to save uploaded file")
	}
	log.Infof("saved octet-stream upload to %s", path)

	return Result{
		Success:     true,
		StatusCode:  201,
		StatusText:  "Created",
		ContentType: "text/html",
		Body:        []byte(GenerateUploadResponse(true, []string{path}, "")),
		SavedPaths:  []string{path},
	}
}

// GenerateUploadResponse renders the HTML success/failure page, grounded on
// UploadHandler::generateUploadResponse.
func GenerateUploadResponse(success bool, savedPaths []string, errMessage string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n  <meta charset=\"UTF-8\">\n")
	if success {
		b.WriteString("  <title>Upload Successful</title>\n</head>\n<body>\n  <h1>Upload Successful</h1>\n  <ul>\n")
		for _, path := range savedPaths {
			fmt.Fprintf(&b, "    <li>%s</li>\n", filepath.Base(path))
		}
		b.WriteString("  </ul>\n</body>\n</html>\n")
	} else {
		b.WriteString("  <title>Upload Failed</title>\n</head>\n<body>\n  <h1>Upload Failed</h1>\n")
		fmt.Fprintf(&b, "  <p>%s</p>\n</body>\n</html>\n", errMessage)
	}
	return b.String()
}
