package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/blockscope/blockscope/internal/editor"
	"github.com/blockscope/blockscope/pkg/block"
)

var errPathEscapes = errors.New("path escapes project directory")

// maxBodyBytes caps request bodies; replacement text has its own smaller cap.
const maxBodyBytes = 10 << 20

type sourceResponse struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	Language  string `json:"language,omitempty"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Source    string `json:"source"`
}

type replaceRequest struct {
	Source string `json:"source"`
}

type replaceResponse struct {
	Success     bool        `json:"success"`
	LinesBefore int         `json:"lines_before"`
	LinesAfter  int         `json:"lines_after"`
	Block       *block.View `json:"block,omitempty"`
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	view, err := s.eng.View(r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	src, err := s.eng.Source(r.PathValue("id"))
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sourceResponse{
		ID:        src.ID,
		Path:      src.Path,
		Language:  src.Language,
		StartLine: src.StartLine,
		EndLine:   src.EndLine,
		Source:    src.Text,
	})
}

// handleAnalyze waits for the block's analysis up to the configured timeout.
// A timed-out wait answers 504 while the analysis keeps running; a later
// request picks up its result from the cache.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	f, err := s.eng.Request(r.Context(), id)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.WaitTimeout)
	defer cancel()
	if _, err := f.Wait(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			writeJSON(w, http.StatusGatewayTimeout, map[string]string{
				"error":  "analysis still running; retry later",
				"status": "pending",
			})
			return
		}
		writeError(w, errorStatus(err), err.Error())
		return
	}

	s.writeBlock(w, http.StatusOK, id)
}

func (s *Server) handleReplace(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req replaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Source) > editor.MaxReplacementBytes {
		writeError(w, http.StatusBadRequest, "replacement too large (max 1MB)")
		return
	}

	s.editMu.Lock()
	defer s.editMu.Unlock()

	src, err := s.eng.Source(id)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	if src.Kind == block.KindDirectory {
		writeError(w, http.StatusBadRequest, "cannot replace directory blocks")
		return
	}
	path, err := s.resolve(src.Path)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errPathEscapes) {
			status = http.StatusForbidden
		}
		writeError(w, status, err.Error())
		return
	}

	res, err := editor.ReplaceLines(path, src.StartLine, src.EndLine, req.Source)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	if err := s.eng.OnReplace(id, req.Source); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	s.log.Info("block replaced", "node", id, "lines_before", res.LinesBefore, "lines_after", res.LinesAfter)
	s.hub.Broadcast(msgReplaced, map[string]string{"node_id": id})

	view, err := s.eng.View(id)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	view.Children = nil
	writeJSON(w, http.StatusOK, replaceResponse{
		Success:     true,
		LinesBefore: res.LinesBefore,
		LinesAfter:  res.LinesAfter,
		Block:       view,
	})
}

// resolve maps a block path to a file inside the project root, refusing
// anything that escapes it through ".." or symlinks.
func (s *Server) resolve(rel string) (string, error) {
	if s.opts.Root == "" {
		return "", errors.New("server has no project root")
	}
	root, err := filepath.EvalSymlinks(s.opts.Root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	full, err := filepath.EvalSymlinks(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("file not found: %s", rel)
		}
		return "", fmt.Errorf("resolve %s: %w", rel, err)
	}
	inside, err := filepath.Rel(root, full)
	if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return "", errPathEscapes
	}
	return full, nil
}

// writeBlock answers with one block's view, without its subtree.
func (s *Server) writeBlock(w http.ResponseWriter, status int, id string) {
	view, err := s.eng.View(id)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	view.Children = nil
	writeJSON(w, status, view)
}
