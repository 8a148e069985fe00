package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/user/chatd/internal/apperror"
	"github.com/user/chatd/internal/types"
)

// plainTextExtensions are saved and referenced as-is; anything else is
// run through pandoc to produce a plain-text sibling before the
// file-context message is injected.
var plainTextExtensions = map[string]bool{
	".txt": true, ".md": true, ".json": true, ".csv": true, ".log": true,
}

const maxUploadBytes = 25 << 20 // 25 MiB

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	id := types.ChatID(r.PathValue("id"))

	sess, err := s.registry.GetOrStart(r.Context(), id)
	if err != nil {
		if apperror.Is(err, apperror.ErrNotFound) {
			writeError(w, http.StatusNotFound, "chat not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing multipart field 'file'")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	destPath := filepath.Join(sess.WorkDir(), filename)

	dest, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Error("create uploaded file", "chat_id", string(id), "filename", filename, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if _, err := io.Copy(dest, file); err != nil {
		dest.Close()
		slog.Error("write uploaded file", "chat_id", string(id), "filename", filename, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	dest.Close()

	contextFilename := filename
	if !plainTextExtensions[strings.ToLower(filepath.Ext(filename))] {
		if converted, err := s.convertToText(r.Context(), sess.WorkDir(), filename); err != nil {
			slog.Warn("pandoc conversion failed, injecting original file", "chat_id", string(id), "filename", filename, "error", err)
		} else {
			contextFilename = converted
		}
	}

	if err := sess.AddFileContext(contextFilename); err != nil {
		slog.Error("add file context", "chat_id", string(id), "filename", contextFilename, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"filename": filename,
		"path":     destPath,
	})
}

// convertToText shells a pandoc conversion through the Executor, bounded
// by the same whitelist and timeout as any other tool call, and returns
// the converted file's name on success.
func (s *Server) convertToText(ctx context.Context, workDir, filename string) (string, error) {
	textName := filename + ".txt"
	command := fmt.Sprintf("pandoc %s -t plain -o %s", filename, textName)
	result := s.exec.Execute(ctx, command, workDir)
	if !result.Success {
		return "", fmt.Errorf("pandoc: %s", result.Error)
	}
	return textName, nil
}
