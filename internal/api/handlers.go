package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BeatBard/ccs-pops/internal/models"
)

// healthHandler reports service status and the number of active sessions.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	count, err := s.sessions.Count()
	if err != nil {
		slog.Error("Server.healthHandler: failed to count sessions", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read sessions"))
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"message":         "DSR Sales Coaching Assistant",
		"status":          "running",
		"active_sessions": count,
	})
}

// sendRequest is the payload for POST /send.
type sendRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// sendHandler sends a WhatsApp message directly, for testing and
// administrative use.
func (s *Server) sendHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.sendHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	canonicalTo, err := s.msgService.ValidateAndCanonicalizeRecipient(req.To)
	if err != nil {
		slog.Warn("Server.sendHandler: recipient validation failed", "error", err, "to", req.To)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if req.Message == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Message cannot be empty"))
		return
	}

	if err := s.msgService.SendMessage(r.Context(), canonicalTo, req.Message); err != nil {
		slog.Error("Server.sendHandler: failed to send message", "error", err, "to", canonicalTo)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to send message"))
		return
	}

	slog.Info("Server.sendHandler: message sent", "to", canonicalTo)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Message sent successfully", map[string]string{"to": canonicalTo}))
}

// listSessionsHandler returns all active conversation sessions.
func (s *Server) listSessionsHandler(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.List()
	if err != nil {
		slog.Error("Server.listSessionsHandler: failed to list sessions", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list sessions"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sessions))
}

// getSessionHandler returns the session for a single phone number.
func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")

	sess, err := s.sessions.Get(phone)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
			return
		}
		slog.Error("Server.getSessionHandler: failed to get session", "error", err, "phone", phone)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get session"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sess))
}

// resetSessionHandler deletes the session for a phone number so the next
// message starts a fresh conversation.
func (s *Server) resetSessionHandler(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")

	if err := s.sessions.Reset(phone); err != nil {
		slog.Error("Server.resetSessionHandler: failed to reset session", "error", err, "phone", phone)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to reset session"))
		return
	}

	slog.Info("Server.resetSessionHandler: session reset", "phone", phone)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session reset", nil))
}

// visitRequest is the payload for POST /visits.
type visitRequest struct {
	DSRName     string  `json:"dsr_name"`
	OutletID    string  `json:"outlet_id"`
	SalesLitres float64 `json:"sales_litres"`
	Productive  bool    `json:"productive"`
}

// recordVisitHandler records an outlet visit for the day.
func (s *Server) recordVisitHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}

	var req visitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.recordVisitHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.DSRName == "" || req.OutletID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("dsr_name and outlet_id are required"))
		return
	}

	visit, err := s.tracker.RecordVisit(req.DSRName, req.OutletID, req.SalesLitres, req.Productive)
	if err != nil {
		slog.Error("Server.recordVisitHandler: failed to record visit", "error", err, "outlet", req.OutletID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to record visit"))
		return
	}

	slog.Info("Server.recordVisitHandler: visit recorded", "dsr", req.DSRName, "outlet", req.OutletID)
	writeJSONResponse(w, http.StatusCreated, models.Recorded(visit))
}

// visitProgressHandler returns the day's visit progress for a DSR.
func (s *Server) visitProgressHandler(w http.ResponseWriter, r *http.Request) {
	dsrName := r.URL.Query().Get("dsr_name")
	date := r.URL.Query().Get("date")
	if dsrName == "" || date == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("dsr_name and date query parameters are required"))
		return
	}

	progress, err := s.tracker.GetProgress(dsrName, date)
	if err != nil {
		slog.Error("Server.visitProgressHandler: failed to get progress", "error", err, "dsr", dsrName)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get visit progress"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(progress))
}

// dayMetricsHandler returns end-of-day metrics for a DSR.
func (s *Server) dayMetricsHandler(w http.ResponseWriter, r *http.Request) {
	dsrName := r.URL.Query().Get("dsr_name")
	date := r.URL.Query().Get("date")
	if dsrName == "" || date == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("dsr_name and date query parameters are required"))
		return
	}

	metrics, err := s.tracker.Metrics(dsrName, date)
	if err != nil {
		slog.Error("Server.dayMetricsHandler: failed to compute metrics", "error", err, "dsr", dsrName)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to compute metrics"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(metrics))
}

// receiptsHandler returns delivery receipts recorded by the transport.
func (s *Server) receiptsHandler(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.st.GetReceipts()
	if err != nil {
		slog.Error("Server.receiptsHandler: failed to fetch receipts", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch receipts"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(receipts))
}
