package fileserver

import "strings"

// mimeTypes mirrors FileServer::initMimeTypes's table.
var mimeTypes = map[string]string{
	"html": "text/html", "htm": "text/html", "css": "text/css", "js": "text/javascript",
	"json": "application/json", "xml": "application/xml", "txt": "text/plain",
	"csv": "text/csv", "md": "text/markdown",

	"png": "image/png", "jpg": "image/jpeg", "jpeg": "image/jpeg", "gif": "image/gif",
	"ico": "image/x-icon", "svg": "image/svg+xml", "webp": "image/webp", "bmp": "image/bmp",

	"mp3": "audio/mpeg", "wav": "audio/wav", "ogg": "audio/ogg", "flac": "audio/flac",

	"mp4": "video/mp4", "webm": "video/webm", "avi": "video/x-msvideo",
	"mov": "video/quicktime", "mkv": "video/x-matroska",

	"pdf": "application/pdf", "zip": "application/zip", "gz": "application/gzip",
	"tar": "application/x-tar", "rar": "application/vnd.rar", "7z": "application/x-7z-compressed",
	"doc": "application/msword", "docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xls": "application/vnd.ms-excel", "xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"ppt": "application/vnd.ms-powerpoint", "pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",

	"woff": "font/woff", "woff2": "font/woff2", "ttf": "font/ttf", "otf": "font/otf",
	"eot": "application/vnd.ms-fontobject",

	"wasm": "application/wasm", "bin": "application/octet-stream",
}

// MimeType returns the MIME type for filePath's extension, defaulting to
// application/octet-stream, grounded on FileServer::getMimeType.
func MimeType(filePath string) string {
	dot := strings.LastIndexByte(filePath, '.')
	if dot < 0 || dot == len(filePath)-1 {
		return "application/octet-stream"
	}
	ext := strings.ToLower(filePath[dot+1:])
	if mt, ok := mimeTypes[ext]; ok {
		return mt
	}
	return "application/octet-stream"
}
