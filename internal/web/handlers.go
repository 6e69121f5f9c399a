package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/resy-sniper/internal/auth"
	"github.com/example/resy-sniper/internal/logger"
	"github.com/example/resy-sniper/internal/reservation"
	"github.com/example/resy-sniper/internal/snipe"
	"github.com/example/resy-sniper/internal/sniper"
	"github.com/example/resy-sniper/internal/version"
)

type handlers struct {
	d Deps
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto status codes.
func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *snipe.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ve.Msg, Field: ve.Field})
	case errors.Is(err, snipe.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, sniper.ErrNotCancellable):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		h.d.Log.Error("request failed", logger.String("path", r.URL.Path), logger.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

type healthzResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Version       string  `json:"version"`
	GoVersion     string  `json:"go_version"`
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthzResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(h.d.StartTime).Seconds(),
		Version:       version.String(),
		GoVersion:     version.GoVersion(),
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if err := h.d.Auth.Authenticate(strings.TrimSpace(req.Username), req.Password); err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
		return
	}
	if err := h.d.Auth.SetSession(w, r, strings.TrimSpace(req.Username)); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	h.d.Auth.ClearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

type createSnipeRequest struct {
	Platform       string    `json:"platform"`
	RestaurantID   string    `json:"restaurant_id"`
	RestaurantName string    `json:"restaurant_name"`
	TargetDate     string    `json:"target_date"`
	PartySize      int       `json:"party_size"`
	PreferredTimes []string  `json:"preferred_times"`
	ReleaseTime    time.Time `json:"release_time"`
}

func (req createSnipeRequest) params() snipe.Params {
	return snipe.Params{
		Restaurant: snipe.RestaurantRef{
			Platform: reservation.Platform(strings.ToLower(strings.TrimSpace(req.Platform))),
			ID:       req.RestaurantID,
			Name:     req.RestaurantName,
		},
		TargetDate:     req.TargetDate,
		PartySize:      req.PartySize,
		PreferredTimes: req.PreferredTimes,
		ReleaseTime:    req.ReleaseTime,
	}
}

func (h *handlers) createSnipe(w http.ResponseWriter, r *http.Request) {
	var req createSnipeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}

	rec, err := h.d.Snipes.Create(r.Context(), req.params())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *handlers) listSnipes(w http.ResponseWriter, r *http.Request) {
	var filter *snipe.Status
	if v := r.URL.Query().Get("status"); v != "" {
		st, err := snipe.ParseStatus(v)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		filter = &st
	}

	list, err := h.d.Snipes.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []snipe.Snipe{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) getSnipe(w http.ResponseWriter, r *http.Request) {
	rec, err := h.d.Snipes.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handlers) cancelSnipe(w http.ResponseWriter, r *http.Request) {
	rec, err := h.d.Snipes.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handlers) rateLimits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.d.Limiter.AllStatus())
}

func (h *handlers) resetRateLimit(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	if platform == "all" {
		h.d.Limiter.ResetAll()
	} else {
		h.d.Limiter.Reset(platform)
	}
	user, _ := auth.UsernameFromContext(r.Context())
	h.d.Log.Info("rate limit reset", logger.String("platform", platform), logger.String("by", user))
	writeJSON(w, http.StatusOK, h.d.Limiter.AllStatus())
}
