package web

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"irrigation-go-home/internal/caddy"
	"irrigation-go-home/internal/coordinator"
)

// defaultCalendarSpan is the calendar window when no end is given.
const defaultCalendarSpan = 7 * 24 * time.Hour

// device resolves the {addr} path value, answering 404 when unknown.
func (s *Server) device(w http.ResponseWriter, r *http.Request) (caddy.Device, bool) {
	addr := r.PathValue("addr")
	dev, ok := s.coord.Device(addr)
	if !ok {
		s.writeError(w, "lookup controller", fmt.Errorf("%s: %w", addr, coordinator.ErrUnknownController))
		return nil, false
	}
	return dev, true
}

func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.device(w, r)
	if !ok {
		return
	}
	st, err := dev.Status(r.Context())
	if err != nil {
		s.writeError(w, "read status", err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleAPIBootTime(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.device(w, r)
	if !ok {
		return
	}
	t, err := dev.BootTime(r.Context())
	if err != nil {
		s.writeError(w, "read boot time", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"boot_time": t})
}

func (s *Server) handleAPISystemTime(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.device(w, r)
	if !ok {
		return
	}
	t, err := dev.SystemTime(r.Context())
	if err != nil {
		s.writeError(w, "read system time", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"time": t})
}

func (s *Server) handleAPISyncClock(w http.ResponseWriter, r *http.Request) {
	t, err := s.coord.SyncClock(r.Context(), r.PathValue("addr"))
	if err != nil {
		s.writeError(w, "sync clock", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": t})
}

func (s *Server) handleAPISetNTP(w http.ResponseWriter, r *http.Request) {
	var req caddy.NTPSettings
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Enabled && req.Server == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "server is required when enabled"})
		return
	}
	if err := s.coord.SetNTP(r.Context(), r.PathValue("addr"), req); err != nil {
		s.writeError(w, "set ntp", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPICalendar(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if v := r.URL.Query().Get("start"); v != "" {
		t, err := parseTimeParam(v)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid start"})
			return
		}
		start = t
	}
	end := start.Add(defaultCalendarSpan)
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := parseTimeParam(v)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid end"})
			return
		}
		end = t
	}
	if end.Before(start) {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "end before start"})
		return
	}

	dev, ok := s.device(w, r)
	if !ok {
		return
	}
	events, err := dev.Calendar(r.Context(), start, end)
	if err != nil {
		s.writeError(w, "read calendar", err)
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

// parseTimeParam accepts RFC 3339, a local date, or Unix seconds.
func parseTimeParam(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, v, time.Local); err == nil {
		return t, nil
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q", v)
	}
	return time.Unix(sec, 0), nil
}

func (s *Server) handleAPIProgram(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n < 1 {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid program number"})
		return
	}
	dev, ok := s.device(w, r)
	if !ok {
		return
	}
	p, err := dev.Program(r.Context(), n)
	if err != nil {
		s.writeError(w, "read program", err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleAPIZoneNames(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.device(w, r)
	if !ok {
		return
	}
	names, err := dev.ZoneNames(r.Context())
	if err != nil {
		s.writeError(w, "read zone names", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"zone_names": names})
}

type setZoneNamesRequest struct {
	ZoneNames []string `json:"zone_names"`
}

func (s *Server) handleAPISetZoneNames(w http.ResponseWriter, r *http.Request) {
	var req setZoneNamesRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.ZoneNames == nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "zone_names is required"})
		return
	}
	if err := s.coord.SetZoneNames(r.Context(), r.PathValue("addr"), req.ZoneNames); err != nil {
		s.writeError(w, "set zone names", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "zone_names": req.ZoneNames})
}
