package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"irrigation-go-home/internal/caddy"
	"irrigation-go-home/internal/coordinator"
	"irrigation-go-home/internal/jsobj"
	"irrigation-go-home/internal/store"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleAPIListControllers(w http.ResponseWriter, r *http.Request) {
	list, err := s.coord.Controllers()
	if err != nil {
		s.logger.Error("list controllers", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if list == nil {
		list = []*store.Controller{}
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAPIGetController(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.coord.Controller(r.PathValue("addr"))
	if err != nil {
		s.writeError(w, "get controller", err)
		return
	}
	s.writeJSON(w, http.StatusOK, ctrl)
}

type addControllerRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleAPIAddController(w http.ResponseWriter, r *http.Request) {
	var req addControllerRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if _, err := coordinator.ParseAddress(req.Address); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	ctrl, err := s.coord.Add(r.Context(), req.Address)
	if err != nil {
		s.writeError(w, "add controller", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, ctrl)
}

type renameControllerRequest struct {
	FriendlyName string `json:"friendly_name"`
}

func (s *Server) handleAPIRenameController(w http.ResponseWriter, r *http.Request) {
	var req renameControllerRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	ctrl, err := s.coord.Rename(r.PathValue("addr"), req.FriendlyName)
	if err != nil {
		s.writeError(w, "rename controller", err)
		return
	}
	s.writeJSON(w, http.StatusOK, ctrl)
}

func (s *Server) handleAPIDeleteController(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.Remove(r.PathValue("addr")); err != nil {
		s.writeError(w, "delete controller", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIScan(w http.ResponseWriter, r *http.Request) {
	rec, err := s.coord.Scan(r.Context())
	if err != nil {
		s.writeError(w, "scan", err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAPIListScans(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}
	scans, err := s.coord.Store().ListScans(limit)
	if err != nil {
		s.writeError(w, "list scans", err)
		return
	}
	if scans == nil {
		scans = []*store.ScanRecord{}
	}
	s.writeJSON(w, http.StatusOK, scans)
}

// decodeBody decodes a JSON request body into v, answering 400 on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

// writeError maps coordinator and controller errors to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	var statusErr *caddy.StatusError
	var decodeErr *jsobj.DecodeError

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, coordinator.ErrUnknownController), errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, coordinator.ErrScanInProgress):
		status = http.StatusConflict
	case errors.Is(err, caddy.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, coordinator.ErrRejected), errors.Is(err, caddy.ErrUnreachable),
		errors.As(err, &statusErr), errors.As(err, &decodeErr):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.logger.Error(op, "err", err)
		s.writeJSON(w, status, map[string]string{"error": "internal server error"})
		return
	}
	s.logger.Debug(op, "status", status, "err", err)
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writeJSON encode failed", "err", err)
	}
}
