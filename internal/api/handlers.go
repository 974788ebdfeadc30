package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/fileroot/internal/logging"
	"github.com/fruitsalade/fileroot/internal/metrics"
	"github.com/fruitsalade/fileroot/internal/storage"
	"github.com/fruitsalade/fileroot/pkg/protocol"
)

// observe records the outcome of one backend operation.
func observe(op string, start time.Time, err error) {
	result := "ok"
	switch {
	case err == nil:
	case storage.IsClientError(err):
		result = "client_error"
	default:
		result = "error"
	}
	metrics.RecordFSOperation(op, result, time.Since(start))
}

// ─── List ───────────────────────────────────────────────────────────────────

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var req ListRequest
	if err := decodeQuery(r.URL.Query(), &req); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.ListResponse{
			Response: protocol.Response{Message: listMessages.invalid},
			Files:    []protocol.FileInfo{},
		})
		return
	}

	start := time.Now()
	entries, err := s.backend.List(r.Context(), req.Path)
	observe("list", start, err)
	if err != nil {
		status, msg := s.classify(err, listMessages, "")
		if status >= http.StatusInternalServerError {
			logging.WithContext(r.Context()).Error("list failed", zap.Error(err))
		}
		writeJSON(w, status, protocol.ListResponse{
			Response: protocol.Response{Message: msg},
			Files:    []protocol.FileInfo{},
		})
		return
	}

	files := make([]protocol.FileInfo, 0, len(entries))
	for _, e := range entries {
		info := protocol.FileInfo{
			Name:    e.Name,
			Size:    e.Size,
			IsDir:   e.IsDir,
			ModTime: e.ModTime,
		}
		if !e.IsDir {
			ct := e.ContentType
			info.Mime = &ct
		}
		files = append(files, info)
	}

	writeJSON(w, http.StatusOK, protocol.ListResponse{
		Response: protocol.Response{Success: true, Message: "Directory listed successfully"},
		Files:    files,
	})
}

// ─── Directories ────────────────────────────────────────────────────────────

func (s *Server) handleMkdir(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := decodeQuery(r.URL.Query(), &req); err != nil {
		writeResponse(w, http.StatusBadRequest, false, mkdirMessages.invalid)
		return
	}

	start := time.Now()
	err := s.backend.CreateDir(r.Context(), req.Path)
	observe("mkdir", start, err)
	if err != nil {
		s.fail(w, r, err, mkdirMessages, "")
		return
	}

	s.publish(protocol.EventMkdir, req.Path, "", 0)
	writeResponse(w, http.StatusOK, true, "Directory created successfully")
}

func (s *Server) handleRmdir(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := decodeQuery(r.URL.Query(), &req); err != nil {
		writeResponse(w, http.StatusBadRequest, false, rmdirMessages.invalid)
		return
	}

	start := time.Now()
	err := s.backend.RemoveDir(r.Context(), req.Path)
	observe("rmdir", start, err)
	if err != nil {
		s.fail(w, r, err, rmdirMessages, "")
		return
	}

	s.publish(protocol.EventRmdir, req.Path, "", 0)
	writeResponse(w, http.StatusOK, true, "Directory deleted successfully")
}

// ─── Files ──────────────────────────────────────────────────────────────────

func (s *Server) handleRemoveFile(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := decodeQuery(r.URL.Query(), &req); err != nil {
		writeResponse(w, http.StatusBadRequest, false, rmMessages.invalid)
		return
	}

	start := time.Now()
	err := s.backend.RemoveFile(r.Context(), req.Path)
	observe("rm", start, err)
	if err != nil {
		s.fail(w, r, err, rmMessages, "")
		return
	}

	s.publish(protocol.EventRm, req.Path, "", 0)
	writeResponse(w, http.StatusOK, true, "File deleted successfully")
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := decodeQuery(r.URL.Query(), &req); err != nil {
		writeResponse(w, http.StatusBadRequest, false, mvMessages.invalid)
		return
	}

	start := time.Now()
	err := s.backend.Move(r.Context(), req.From, req.To)
	observe("mv", start, err)
	if err != nil {
		s.fail(w, r, err, mvMessages, req.From)
		return
	}

	s.publish(protocol.EventMove, req.To, req.From, 0)
	writeResponse(w, http.StatusOK, true, s.kindOf(r, req.To)+" moved successfully")
}

func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := decodeQuery(r.URL.Query(), &req); err != nil {
		writeResponse(w, http.StatusBadRequest, false, cpMessages.invalid)
		return
	}

	start := time.Now()
	err := s.backend.Copy(r.Context(), req.From, req.To)
	observe("cp", start, err)
	if err != nil {
		s.fail(w, r, err, cpMessages, req.From)
		return
	}

	s.publish(protocol.EventCopy, req.To, req.From, 0)
	writeResponse(w, http.StatusOK, true, s.kindOf(r, req.To)+" copied successfully")
}

// kindOf names what now lives at p for a success message.
func (s *Server) kindOf(r *http.Request, p string) string {
	e, err := s.backend.Stat(r.Context(), p)
	if err == nil && e.IsDir {
		return "Directory"
	}
	return "File"
}

// ─── Transfer ───────────────────────────────────────────────────────────────

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := decodeQuery(r.URL.Query(), &req); err != nil {
		writeResponse(w, http.StatusBadRequest, false, uploadMessages.invalid)
		return
	}

	start := time.Now()
	n, err := s.backend.Upload(r.Context(), req.Path, r.Body)
	observe("upload", start, err)
	metrics.RecordUpload(n, err == nil)
	if err != nil {
		s.fail(w, r, err, uploadMessages, "")
		return
	}

	logging.WithContext(r.Context()).Debug("upload complete",
		zap.String("path", req.Path), zap.Int64("bytes", n))
	s.publish(protocol.EventUpload, req.Path, "", n)
	writeResponse(w, http.StatusOK, true, "File uploaded successfully")
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if err := decodeQuery(r.URL.Query(), &req); err != nil {
		writeResponse(w, http.StatusBadRequest, false, downloadMessages.invalid)
		return
	}

	start := time.Now()
	dl, err := s.backend.Download(r.Context(), req.Path)
	observe("download", start, err)
	if err != nil {
		metrics.RecordDownload(0, false)
		s.fail(w, r, err, downloadMessages, "")
		return
	}
	defer dl.Close()

	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(dl.Size, 10))
	if !req.Peek {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Name))
	}
	w.WriteHeader(http.StatusOK)

	// Headers are gone; from here a failure can only cut the body short.
	var written int64
	var streamErr error
	for chunk, err := range dl.Chunks() {
		if err != nil {
			streamErr = err
			break
		}
		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			streamErr = err
			break
		}
	}
	metrics.RecordDownload(written, streamErr == nil)
	if streamErr != nil && r.Context().Err() == nil {
		logging.WithContext(r.Context()).Warn("download interrupted",
			zap.String("path", req.Path), zap.Int64("bytes", written), zap.Error(streamErr))
	}
}
