// Package protocol defines the API request/response types.
package protocol

import "time"

// Response is the envelope shared by every JSON endpoint.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// FileInfo is one entry of a directory listing. Mime is null for directories.
type FileInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	IsDir   bool      `json:"is_dir"`
	Mime    *string   `json:"mime"`
	ModTime time.Time `json:"mod_time"`
}

// ListResponse is returned by GET /api/v1/ls. Files is always an array, never
// null, even on failure.
type ListResponse struct {
	Response
	Files []FileInfo `json:"files"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status       string `json:"status"`
	DataDirTotal uint64 `json:"data_dir_total"`
	DataDirFree  uint64 `json:"data_dir_free"`
}

// Event types published on GET /api/v1/events.
const (
	EventMkdir  = "mkdir"
	EventRmdir  = "rmdir"
	EventRm     = "rm"
	EventMove   = "mv"
	EventCopy   = "cp"
	EventUpload = "upload"
)

// Event describes a completed mutation. From is set for mv and cp, Size for
// upload.
type Event struct {
	Type      string `json:"type"`
	Path      string `json:"path"`
	From      string `json:"from,omitempty"`
	Size      int64  `json:"size,omitempty"`
	Timestamp int64  `json:"timestamp"`
}
