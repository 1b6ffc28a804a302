package store

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

var extensionTypes = map[string]string{
	".txt": "text/plain", ".log": "text/plain", ".csv": "text/csv",
	".mp4": "video/mp4", ".mov": "video/quicktime", ".webm": "video/webm",
	".mp3": "audio/mpeg", ".ogg": "audio/ogg", ".wav": "audio/wav",
	".mkv": "video/x-matroska", ".flv": "video/x-flv", ".m4v": "video/x-m4v",
	".flac": "audio/flac", ".aac": "audio/aac", ".m4a": "audio/mp4", ".opus": "audio/opus",
	".md": "text/markdown", ".yaml": "text/yaml", ".yml": "text/yaml", ".toml": "text/x-toml",
	".go": "text/x-go", ".py": "text/x-python", ".rb": "text/x-ruby", ".rs": "text/x-rust",
	".sh": "application/x-sh", ".c": "text/x-c", ".h": "text/x-chdr", ".cpp": "text/x-c++src",
	".java": "text/x-java", ".ts": "application/typescript", ".sql": "application/sql",
	".r": "text/x-r", ".d": "text/x-d",
}

// Mimetype derives the MIME type stored for a new file from its name,
// sniffing data when the extension is unknown. Parameters such as charset
// are dropped.
func Mimetype(name string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	if ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			return stripParams(t)
		}
	}
	if len(data) == 0 {
		return "application/octet-stream"
	}
	return stripParams(http.DetectContentType(data))
}

func stripParams(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}
