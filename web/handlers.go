package web

import (
	"encoding/json"
	goerrors "errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"roadlink/auth"
	"roadlink/domain"
	"roadlink/errors"
	"roadlink/observability"
	"roadlink/services"
)

type Handlers struct {
	log       *slog.Logger
	auth      services.IAuthService
	incidents services.IIncidentService
	monitor   *observability.Monitor
}

func NewHandlers(log *slog.Logger, authSvc services.IAuthService, incidents services.IIncidentService, monitor *observability.Monitor) *Handlers {
	return &Handlers{log: log, auth: authSvc, incidents: incidents, monitor: monitor}
}

type registerPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var payload registerPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	token, identity, err := h.auth.Register(auth.RegisterRequest{
		Name:     payload.Name,
		Email:    payload.Email,
		Phone:    payload.Phone,
		Password: payload.Password,
		Role:     payload.Role,
	})
	if err != nil {
		switch {
		case goerrors.Is(err, errors.ErrUserAlreadyExists):
			respondError(w, http.StatusConflict, "email already registered")
		case goerrors.Is(err, errors.ErrInvalidPassword):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error("Registration failed", "error", err)
			respondError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}
	respondJSON(w, http.StatusCreated, authResponse{
		Token:  token.String(),
		UserID: identity.UserID,
		Name:   identity.Name,
		Role:   identity.Role,
	})
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var payload loginPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	token, identity, err := h.auth.Login(payload.Email, payload.Password)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	respondJSON(w, http.StatusOK, authResponse{
		Token:  token.String(),
		UserID: identity.UserID,
		Name:   identity.Name,
		Role:   identity.Role,
	})
}

func (h *Handlers) ReportIncident(w http.ResponseWriter, r *http.Request) {
	var req services.ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	inc, err := h.incidents.Report(r.Context(), identityFrom(r.Context()), req)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, toIncidentDTO(inc))
}

func (h *Handlers) ListIncidents(w http.ResponseWriter, r *http.Request) {
	incs, err := h.incidents.ListUnresolved()
	if err != nil {
		h.log.Error("Listing incidents failed", "error", err)
		respondError(w, http.StatusInternalServerError, "listing failed")
		return
	}
	respondJSON(w, http.StatusOK, toIncidentDTOs(incs))
}

func (h *Handlers) GetIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := incidentParam(w, r)
	if !ok {
		return
	}
	inc, err := h.incidents.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "incident not found")
		return
	}
	respondJSON(w, http.StatusOK, toIncidentDTO(inc))
}

func (h *Handlers) NearbyIncidents(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if errLat != nil || errLng != nil {
		respondError(w, http.StatusBadRequest, "lat and lng are required")
		return
	}
	radius := 10.0
	if raw := r.URL.Query().Get("radius"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed > 0 {
			radius = parsed
		}
	}
	incs, err := h.incidents.Nearby(lat, lng, radius)
	if err != nil {
		h.log.Error("Nearby lookup failed", "error", err)
		respondError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	respondJSON(w, http.StatusOK, toIncidentDTOs(incs))
}

func (h *Handlers) SearchIncidents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		respondError(w, http.StatusBadRequest, "q query parameter is required")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	incs, err := h.incidents.Search(r.Context(), query, limit)
	if err != nil {
		h.log.Error("Search failed", "query", query, "error", err)
		respondError(w, http.StatusInternalServerError, "search failed")
		return
	}
	respondJSON(w, http.StatusOK, toIncidentDTOs(incs))
}

func (h *Handlers) IncidentMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := incidentParam(w, r)
	if !ok {
		return
	}
	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid after parameter")
			return
		}
		after = parsed
	}
	msgs, err := h.incidents.Messages(id, after)
	if err != nil {
		if goerrors.Is(err, errors.ErrIncidentNotFound) {
			respondError(w, http.StatusNotFound, "incident not found")
			return
		}
		h.log.Error("History read failed", "incident", id, "error", err)
		respondError(w, http.StatusInternalServerError, "history read failed")
		return
	}
	out := make([]MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageDTO(m))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handlers) ResolveIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := incidentParam(w, r)
	if !ok {
		return
	}
	err := h.incidents.Resolve(r.Context(), identityFrom(r.Context()), id)
	if err != nil {
		switch {
		case goerrors.Is(err, errors.ErrUnauthenticated):
			respondError(w, http.StatusForbidden, "admin role required")
		case goerrors.Is(err, errors.ErrIncidentNotFound):
			respondError(w, http.StatusNotFound, "incident not found")
		default:
			h.log.Error("Resolve failed", "incident", id, "error", err)
			respondError(w, http.StatusInternalServerError, "resolve failed")
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"resolved": true})
}

func (h *Handlers) UserStats(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	stats, err := h.incidents.Stats(identity.UserID)
	if err != nil {
		h.log.Error("Stats read failed", "user", identity.UserID, "error", err)
		respondError(w, http.StatusInternalServerError, "stats read failed")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.monitor.GetLatest())
}

func incidentParam(w http.ResponseWriter, r *http.Request) (domain.IncidentID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid incident id")
		return 0, false
	}
	return domain.IncidentID(id), true
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
