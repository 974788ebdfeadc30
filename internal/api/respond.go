package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/fruitsalade/fileroot/internal/logging"
	"github.com/fruitsalade/fileroot/internal/storage"
	"github.com/fruitsalade/fileroot/pkg/protocol"
)

// messages holds the client-facing wording for one operation's outcomes.
type messages struct {
	invalid        string
	notFound       string
	sourceNotFound string // mv and cp, when the source is the missing path
	wrongType      string
	exists         string
	invalidSource  string
	failed         string
}

var (
	listMessages = messages{
		invalid:   "Invalid path",
		notFound:  "Path not found",
		wrongType: "Path is not a directory",
		failed:    "Failed to read directory",
	}
	mkdirMessages = messages{
		invalid:  "Invalid path",
		notFound: "Parent directory not found",
		exists:   "Directory already exists",
		failed:   "Failed to create directory",
	}
	rmdirMessages = messages{
		invalid:   "Invalid path",
		notFound:  "Directory not found",
		wrongType: "Directory not found",
		failed:    "Failed to delete directory",
	}
	rmMessages = messages{
		invalid:   "Invalid path",
		notFound:  "File not found",
		wrongType: "File not found",
		failed:    "Failed to delete file",
	}
	mvMessages = messages{
		invalid:        "Invalid paths",
		notFound:       "Destination parent not found",
		sourceNotFound: "Source path not found",
		exists:         "Destination path already exists",
		failed:         "Failed to move",
	}
	cpMessages = messages{
		invalid:        "Invalid paths",
		notFound:       "Destination parent not found",
		sourceNotFound: "Source file not found",
		exists:         "Destination path already exists",
		invalidSource:  "Source is not a file or directory",
		failed:         "Failed to copy",
	}
	uploadMessages = messages{
		invalid:  "Invalid path",
		notFound: "Parent directory not found",
		exists:   "File already exists",
		failed:   "Failed to upload file",
	}
	downloadMessages = messages{
		invalid:   "Invalid path",
		notFound:  "File not found",
		wrongType: "File not found",
		failed:    "Failed to open file",
	}
)

// classify maps an operation error to a status and message. source is the
// client path that counts as the source for mv and cp.
func (s *Server) classify(err error, m messages, source string) (int, string) {
	switch {
	case errors.Is(err, storage.ErrInvalidPath):
		return http.StatusBadRequest, m.invalid
	case errors.Is(err, storage.ErrAlreadyExists):
		return http.StatusBadRequest, m.exists
	case errors.Is(err, storage.ErrInvalidSource):
		return http.StatusBadRequest, m.invalidSource
	case errors.Is(err, storage.ErrNotADirectory), errors.Is(err, storage.ErrNotAFile):
		return http.StatusNotFound, m.wrongType
	case errors.Is(err, storage.ErrNotFound):
		var pe *storage.PathError
		if m.sourceNotFound != "" && errors.As(err, &pe) && pe.Path == source {
			return http.StatusNotFound, m.sourceNotFound
		}
		return http.StatusNotFound, m.notFound
	default:
		return http.StatusInternalServerError, m.failed + ": " + s.redact(err)
	}
}

// redact describes an internal error without revealing where the data
// directory lives on the host.
func (s *Server) redact(err error) string {
	var pe *storage.PathError
	if errors.As(err, &pe) {
		err = pe.Err
	}
	msg := err.Error()
	if s.root != "" {
		msg = strings.ReplaceAll(msg, s.root+string(filepath.Separator), "/")
		// The root on its own, but not a sibling sharing its prefix.
		bare := regexp.MustCompile(regexp.QuoteMeta(s.root) + `($|[^\w.\-])`)
		msg = bare.ReplaceAllString(msg, "/${1}")
	}
	return msg
}

// fail logs and writes an operation error.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, m messages, source string) {
	status, msg := s.classify(err, m, source)
	logger := logging.WithContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("operation failed", zap.Error(err))
	} else {
		logger.Debug("operation rejected", zap.Error(err), zap.Int("status", status))
	}
	writeResponse(w, status, false, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("failed to encode response", zap.Error(err))
	}
}

func writeResponse(w http.ResponseWriter, status int, success bool, message string) {
	writeJSON(w, status, protocol.Response{Success: success, Message: message})
}
