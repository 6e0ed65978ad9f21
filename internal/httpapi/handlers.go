package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/byggpilot/byggpilot/internal/config"
	"github.com/byggpilot/byggpilot/internal/service"
	"github.com/byggpilot/byggpilot/internal/workflow"
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req service.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.DelegatedToken = bearerToken(r)

	reply, err := s.assistant.RunAgentTurn(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

type checklistRequest struct {
	Item string `json:"item"`
	Done bool   `json:"done"`
}

type finalizeInvoiceRequest struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

type refreshRequest struct {
	RequestedBy string `json:"requested_by"`
}

// handleInvoiceRoutes dispatches /api/invoices/{project_id}/{action}.
func (s *Server) handleInvoiceRoutes(w http.ResponseWriter, r *http.Request) {
	projectID, action, ok := parseInvoiceRoute(r.URL.Path)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	switch action {
	case "draft":
		ret, err := s.assistant.PrepareInvoiceDraft(r.Context(), bearerToken(r), projectID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ret)

	case "checklist":
		var req checklistRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		instance, err := s.assistant.SetInvoiceChecklist(r.Context(), projectID, req.Item, req.Done)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, instance)

	case "finalize":
		var req finalizeInvoiceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		ret, err := s.assistant.FinalizeInvoice(r.Context(), bearerToken(r), workflow.FinalizeRequest{
			SubjectID: projectID,
			Recipient: req.Recipient,
			Message:   req.Message,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ret)

	case "refresh":
		var req refreshRequest
		if r.Body != nil {
			// body is optional for refresh
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		job, err := s.assistant.RequestInvoiceDraftRefresh(r.Context(), projectID, req.RequestedBy)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, job)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func parseInvoiceRoute(rawPath string) (projectID string, action string, ok bool) {
	trimmed := strings.TrimPrefix(rawPath, "/api/invoices/")
	trimmed = strings.Trim(trimmed, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	if decoded, err := url.PathUnescape(parts[0]); err == nil {
		parts[0] = decoded
	}
	return parts[0], parts[1], true
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.queue.List())
}

func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jobID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/jobs/"), "/")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "missing job id")
		return
	}
	job, ok := s.queue.Get(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		settings, err := s.settings.GetRuntimeSettings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var req config.RuntimeSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		saved, err := s.settings.UpdateRuntimeSettings(req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if s.apply != nil {
			if err := s.apply(saved); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, saved)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}

// writeServiceError maps the service error taxonomy onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case service.IsErrorType(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case service.IsErrorType(err, service.ErrAuthorization):
		writeError(w, http.StatusUnauthorized, err.Error())
	case service.IsErrorType(err, service.ErrExternalService):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
