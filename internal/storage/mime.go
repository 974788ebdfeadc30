package storage

import (
	"mime"
	"path/filepath"
)

// DefaultContentType is used when the extension is unknown.
const DefaultContentType = "application/octet-stream"

// ContentType guesses a media type from the file name's extension. Parameters
// such as charset are dropped, so ".txt" gives "text/plain".
func ContentType(name string) string {
	ct := mime.TypeByExtension(filepath.Ext(name))
	if ct == "" {
		return DefaultContentType
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return DefaultContentType
	}
	return mediaType
}
