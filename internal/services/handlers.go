package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/samber/lo"

	"github.com/dpup/rooftrace/server/internal/clients/simulation"
	"github.com/dpup/rooftrace/server/internal/lib/area"
	"github.com/dpup/rooftrace/server/internal/lib/capture"
	"github.com/dpup/rooftrace/server/internal/lib/geo"
	"github.com/dpup/rooftrace/server/internal/lib/outline"
)

const maxBodyBytes = 1 << 20

// SessionResponse is the capture state returned by every session endpoint
type SessionResponse struct {
	ID             string              `json:"id"`
	Points         []geo.Point         `json:"points"`
	DrawModeActive bool                `json:"draw_mode_active"`
	ClickPending   bool                `json:"click_pending"`
	Metrics        capture.Metrics     `json:"metrics"`
	PerimeterM     float64             `json:"perimeter_m"`
	Centroid       *geo.Point          `json:"centroid,omitempty"`
	Settings       simulation.Settings `json:"settings"`
	HasResult      bool                `json:"has_result"`
}

// MutationResponse reports whether a point mutation took effect
type MutationResponse struct {
	Applied bool            `json:"applied"`
	Session SessionResponse `json:"session"`
}

// OutlineResponse is the outline in exchange formats
type OutlineResponse struct {
	Polyline string       `json:"polyline"`
	Polygon  [][2]float64 `json:"polygon"`
}

// OutlineRequest replaces the outline; Polyline wins when both are set
type OutlineRequest struct {
	Polyline string       `json:"polyline,omitempty"`
	Polygon  [][2]float64 `json:"polygon,omitempty"`
}

// ResultResponse wraps a cached simulation result
type ResultResponse struct {
	Results      *simulation.Results `json:"results"`
	CalculatedAt time.Time           `json:"calculated_at"`
}

// AreaRequest is the body of the stateless area endpoint
type AreaRequest struct {
	Polygon [][2]float64 `json:"polygon"`
}

// AreaResponse is the stateless area result
type AreaResponse struct {
	area.Result
	PerimeterM float64 `json:"perimeter_m"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler returns the /api/v1 routes with CORS applied for the configured
// origins
func (s *SessionService) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.withSession(s.handleGetSession))
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.handleDeleteSession)

	mux.HandleFunc("POST /api/v1/sessions/{id}/clicks", s.withSession(s.handleClick))
	mux.HandleFunc("POST /api/v1/sessions/{id}/points", s.withSession(s.handleAddPoint))
	mux.HandleFunc("DELETE /api/v1/sessions/{id}/points/last", s.withSession(s.handleRemoveLastPoint))
	mux.HandleFunc("DELETE /api/v1/sessions/{id}/points", s.withSession(s.handleClearPolygon))
	mux.HandleFunc("PUT /api/v1/sessions/{id}/draw-mode", s.withSession(s.handleDrawMode))
	mux.HandleFunc("PUT /api/v1/sessions/{id}/settings", s.withSession(s.handleSettings))

	mux.HandleFunc("GET /api/v1/sessions/{id}/outline", s.withSession(s.handleGetOutline))
	mux.HandleFunc("PUT /api/v1/sessions/{id}/outline", s.withSession(s.handlePutOutline))
	mux.HandleFunc("GET /api/v1/sessions/{id}/outline.kml", s.withSession(s.handleOutlineKML))

	mux.HandleFunc("POST /api/v1/sessions/{id}/calculate", s.withSession(s.handleCalculate))
	mux.HandleFunc("GET /api/v1/sessions/{id}/result", s.withSession(s.handleResult))

	mux.HandleFunc("POST /api/v1/area", s.handleArea)

	return withRequestLogger(withCORS(s.config.Server.CorsOrigins, mux))
}

// withRequestLogger makes sure handlers can log even when the host server
// did not attach a logger to the request
func withRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(logging.EnsureLogger(r.Context())))
	})
}

// withCORS lets the browser map widget call the API from its own origin.
// Preflight requests from allowed origins are answered here.
func withCORS(origins []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := ""
		switch {
		case origin == "":
		case lo.Contains(origins, "*"):
			allowed = "*"
		case lo.Contains(origins, origin):
			allowed = origin
		}

		if allowed != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowed)
			h.Add("Vary", "Origin")
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type")
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *Session)

func (s *SessionService) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.GetSession(r.PathValue("id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		h(w, r, sess)
	}
}

func (s *SessionService) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Settings json.RawMessage `json:"settings"`
	}
	if !decodeJSON(w, r, &body, true) {
		return
	}

	var settings *simulation.Settings
	if len(body.Settings) > 0 && string(body.Settings) != "null" {
		// Fields left out of the body keep their defaults.
		merged := s.config.Simulation.Defaults
		if err := json.Unmarshal(body.Settings, &merged); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid settings: " + err.Error()})
			return
		}
		settings = &merged
	}

	sess, err := s.CreateSession(r.Context(), settings)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.sessionResponse(sess))
}

func (s *SessionService) handleGetSession(w http.ResponseWriter, r *http.Request, sess *Session) {
	writeJSON(w, http.StatusOK, s.sessionResponse(sess))
}

func (s *SessionService) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *SessionService) handleClick(w http.ResponseWriter, r *http.Request, sess *Session) {
	var p geo.Point
	if !decodeJSON(w, r, &p, false) {
		return
	}
	accepted := sess.Store.Click(p)
	writeJSON(w, http.StatusAccepted, MutationResponse{Applied: accepted, Session: s.sessionResponse(sess)})
}

func (s *SessionService) handleAddPoint(w http.ResponseWriter, r *http.Request, sess *Session) {
	var p geo.Point
	if !decodeJSON(w, r, &p, false) {
		return
	}
	added := sess.Store.AddPoint(p)
	writeJSON(w, http.StatusOK, MutationResponse{Applied: added, Session: s.sessionResponse(sess)})
}

func (s *SessionService) handleRemoveLastPoint(w http.ResponseWriter, r *http.Request, sess *Session) {
	removed := sess.Store.RemoveLastPoint()
	writeJSON(w, http.StatusOK, MutationResponse{Applied: removed, Session: s.sessionResponse(sess)})
}

func (s *SessionService) handleClearPolygon(w http.ResponseWriter, r *http.Request, sess *Session) {
	sess.Store.ClearPolygon()
	logging.Debugw(r.Context(), "Outline cleared", "session_id", sess.ID)
	writeJSON(w, http.StatusOK, s.sessionResponse(sess))
}

func (s *SessionService) handleDrawMode(w http.ResponseWriter, r *http.Request, sess *Session) {
	var body struct {
		Active *bool `json:"active"`
	}
	if !decodeJSON(w, r, &body, false) {
		return
	}
	if body.Active == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "active is required"})
		return
	}
	sess.Store.SetDrawModeActive(*body.Active)
	writeJSON(w, http.StatusOK, s.sessionResponse(sess))
}

func (s *SessionService) handleSettings(w http.ResponseWriter, r *http.Request, sess *Session) {
	// Decoding over the current settings makes omitted fields keep their value.
	settings := sess.Settings()
	if !decodeJSON(w, r, &settings, false) {
		return
	}
	if err := s.UpdateSettings(sess, settings); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionResponse(sess))
}

func (s *SessionService) handleGetOutline(w http.ResponseWriter, r *http.Request, sess *Session) {
	points := sess.Store.Points()
	writeJSON(w, http.StatusOK, OutlineResponse{
		Polyline: geo.NewGeoUtils().EncodePolyline(points),
		Polygon:  lo.Map(points, func(p geo.Point, _ int) [2]float64 { return p.Pair() }),
	})
}

func (s *SessionService) handlePutOutline(w http.ResponseWriter, r *http.Request, sess *Session) {
	var body OutlineRequest
	if !decodeJSON(w, r, &body, false) {
		return
	}

	points := lo.Map(body.Polygon, func(pair [2]float64, _ int) geo.Point { return geo.PointFromPair(pair) })
	if body.Polyline != "" {
		decoded, err := geo.NewGeoUtils().DecodePolyline(body.Polyline)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		points = decoded
	}

	accepted := sess.Store.SetPolygon(points)
	logging.Debugw(r.Context(), "Outline imported", "session_id", sess.ID, "submitted", len(points), "accepted", accepted)
	writeJSON(w, http.StatusOK, MutationResponse{Applied: accepted > 0, Session: s.sessionResponse(sess)})
}

func (s *SessionService) handleOutlineKML(w http.ResponseWriter, r *http.Request, sess *Session) {
	snapshot := sess.Store.Snapshot()
	if len(snapshot.Points) < capture.MinPoints {
		s.writeError(w, r, outline.ErrTooFewPoints)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.google-earth.kml+xml")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="roof-%s.kml"`, sess.ID))
	if err := outline.WriteKML(w, "Roof "+sess.ID, snapshot.Points, snapshot.Metrics.AreaSqm); err != nil {
		logging.Errorw(r.Context(), "Failed to write KML", "session_id", sess.ID, "error", err)
	}
}

func (s *SessionService) handleCalculate(w http.ResponseWriter, r *http.Request, sess *Session) {
	results, err := s.Calculate(r.Context(), sess)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ResultResponse{Results: results, CalculatedAt: s.now()})
}

func (s *SessionService) handleResult(w http.ResponseWriter, r *http.Request, sess *Session) {
	results, createdAt, err := s.Result(sess)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ResultResponse{Results: results, CalculatedAt: createdAt})
}

func (s *SessionService) handleArea(w http.ResponseWriter, r *http.Request) {
	var body AreaRequest
	if !decodeJSON(w, r, &body, false) {
		return
	}

	points := lo.Map(body.Polygon, func(pair [2]float64, _ int) geo.Point { return geo.PointFromPair(pair) })
	result := s.engine.Compute(r.Context(), points)

	var perimeter float64
	if result.Method != area.MethodNone {
		perimeter = geo.NewGeoUtils().RingPerimeter(points)
	}
	writeJSON(w, http.StatusOK, AreaResponse{Result: result, PerimeterM: perimeter})
}

func (s *SessionService) sessionResponse(sess *Session) SessionResponse {
	snapshot := sess.Store.Snapshot()
	geoUtils := geo.NewGeoUtils()

	resp := SessionResponse{
		ID:             sess.ID,
		Points:         snapshot.Points,
		DrawModeActive: snapshot.DrawModeActive,
		ClickPending:   snapshot.ClickPending,
		Metrics:        snapshot.Metrics,
		Settings:       sess.Settings(),
		HasResult:      s.cache.HasResult(sess.ID),
	}
	if len(snapshot.Points) >= capture.MinPoints {
		resp.PerimeterM = geoUtils.RingPerimeter(snapshot.Points)
	}
	if c, ok := geoUtils.Centroid(snapshot.Points); ok {
		resp.Centroid = &c
	}
	return resp
}

// writeError maps service and client errors to HTTP statuses
func (s *SessionService) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()

	var apiErr *simulation.APIError
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrNoResult):
		status = http.StatusNotFound
	case errors.Is(err, simulation.ErrInvalidSettings):
		status = http.StatusBadRequest
	case errors.Is(err, simulation.ErrTooFewPoints), errors.Is(err, outline.ErrTooFewPoints):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ErrOutlineChanged):
		status = http.StatusConflict
	case errors.As(err, &apiErr):
		status = http.StatusBadGateway
		msg = "simulation failed: " + apiErr.Detail
	case errors.Is(err, ErrSimulationFailed):
		status = http.StatusBadGateway
	default:
		logging.Errorw(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
	}

	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeJSON reads the request body into v, writing a 400 on failure
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
