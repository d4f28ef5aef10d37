package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/warren/pkg/types"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

func (s *Server) allowedExtension(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, allowed := range s.cfg.UploadAllowedFormats {
		if strings.ToLower(allowed) == ext {
			return true
		}
	}
	return false
}

// handleUpload accepts a single multipart file plus an optional tag,
// enforcing the extension allowlist and the configured size cap.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r)

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		badRequest(w, "malformed multipart upload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "missing file field")
		return
	}
	defer file.Close()

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(header.Filename), "."))
	if !s.allowedExtension(ext) {
		unsupportedMedia(w, fmt.Sprintf("unsupported file extension %q", ext))
		return
	}

	fileID := uuid.NewString()
	destDir := filepath.Join(s.cfg.DataRoot, user)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		internalError(w, "failed to prepare storage directory")
		return
	}
	destPath := filepath.Join(destDir, fileID+"."+ext)

	dst, err := os.Create(destPath)
	if err != nil {
		internalError(w, "failed to store upload")
		return
	}
	written, err := io.Copy(dst, file)
	closeErr := dst.Close()
	if err != nil || closeErr != nil {
		os.Remove(destPath)
		internalError(w, "failed to store upload")
		return
	}

	record := &types.File{
		FileID:       fileID,
		FilePath:     destPath,
		FilenameOrig: header.Filename,
		FileExt:      ext,
		FileSizeMB:   float64(written) / (1024 * 1024),
		FileDate:     time.Now(),
		Tag:          r.FormValue("tag"),
	}
	if err := s.store.InsertFile(user, record); err != nil {
		internalError(w, "failed to persist file record")
		return
	}

	writeJSON(w, http.StatusOK, "", map[string]any{"fileid": fileID})
}

// handleFileIDs lists the caller's file records, optionally filtered by
// the "tag" query parameter.
func (s *Server) handleFileIDs(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r)
	files, err := s.store.FindFiles(user, r.URL.Query().Get("tag"))
	if err != nil {
		internalError(w, "failed to list files")
		return
	}
	writeJSON(w, http.StatusOK, "", map[string]any{"files": files})
}

// handleDownload streams a previously uploaded file as an attachment.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r)
	id := mux.Vars(r)["id"]

	file, err := s.store.FindFile(user, id)
	if err != nil {
		notFound(w, fmt.Sprintf("file %q not found", id))
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.FilenameOrig))
	http.ServeFile(w, r, file.FilePath)
}

// handleDeleteFile removes the file from disk (best-effort) and its
// metadata record.
func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r)
	id := mux.Vars(r)["id"]

	file, err := s.store.FindFile(user, id)
	if err != nil {
		notFound(w, fmt.Sprintf("file %q not found", id))
		return
	}

	if err := os.Remove(file.FilePath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn().Err(err).Str("path", file.FilePath).Msg("failed to remove file from disk")
	}
	if err := s.store.DeleteFile(user, id); err != nil {
		internalError(w, "failed to delete file record")
		return
	}

	writeJSON(w, http.StatusOK, "", nil)
}
