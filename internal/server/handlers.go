package server

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/dadras-ai/dadras/internal/ingest"
	"github.com/dadras-ai/dadras/internal/models"
)

// maxUploadBytes bounds the in-memory portion of a multipart upload.
const maxUploadBytes = 32 << 20

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("ask request",
		zap.Int("top_k", req.TopK), zap.String("conversation_id", req.ConversationID))

	// The question turn is persisted as soon as it exists; the answer turn
	// after generation. A crash in between loses only the answer.
	s.appendTurn(r, req.ConversationID, "user", req.Question)

	resp, err := s.orchestrator.Ask(r.Context(), req)
	if err != nil {
		s.logger.Error("ask failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.appendTurn(r, req.ConversationID, "assistant", resp.Answer)
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) appendTurn(r *http.Request, conversationID, role, content string) {
	if s.messages == nil || conversationID == "" {
		return
	}
	if err := s.messages.Append(r.Context(), conversationID, role, content); err != nil {
		s.logger.Warn("failed to persist turn",
			zap.String("conversation_id", conversationID), zap.String("role", role), zap.Error(err))
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	var docs []ingest.Document
	for _, headers := range r.MultipartForm.File {
		for _, h := range headers {
			f, err := h.Open()
			if err != nil {
				s.respondError(w, http.StatusBadRequest, "unreadable upload: "+h.Filename)
				return
			}
			content, err := io.ReadAll(f)
			_ = f.Close()
			if err != nil {
				s.respondError(w, http.StatusBadRequest, "unreadable upload: "+h.Filename)
				return
			}
			docs = append(docs, ingest.Document{Name: h.Filename, Content: content})
		}
	}
	if len(docs) == 0 {
		s.respondError(w, http.StatusBadRequest, "no files in upload")
		return
	}
	s.logger.Info("upload received", zap.Int("files", len(docs)))

	report := s.ingestor.IngestBatch(r.Context(), docs)
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.ListSources(r.Context())
	if err != nil {
		s.logger.Error("list sources failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := models.SourcesResponse{TotalFiles: len(summaries), Sources: summaries}
	if resp.Sources == nil {
		resp.Sources = []models.SourceSummary{}
	}
	for _, sm := range summaries {
		resp.TotalChunks += sm.ChunkCount
	}
	s.respondJSON(w, http.StatusOK, resp)
}

type resetRequest struct {
	Source string `json:"source,omitempty"`
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	s.logger.Info("reset request", zap.String("source", req.Source))
	deleted, err := s.store.Reset(r.Context(), req.Source)
	if err != nil {
		s.logger.Error("reset failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
