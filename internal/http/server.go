package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/np-nandanpatil/adi/internal/auth"
	"github.com/np-nandanpatil/adi/internal/backend"
	"github.com/np-nandanpatil/adi/internal/config"
	"github.com/np-nandanpatil/adi/internal/history"
	"github.com/np-nandanpatil/adi/internal/live"
	"github.com/np-nandanpatil/adi/internal/model"
	"github.com/np-nandanpatil/adi/internal/session"
	"github.com/np-nandanpatil/adi/internal/supervisor"
)

type Server struct {
	cfg      config.Config
	sessions *session.Service
	store    backend.DocumentStore
	live     *live.Manager
	history  *history.Fetcher
	sup      *supervisor.Supervisor
}

func NewServer(cfg config.Config, sessions *session.Service, store backend.DocumentStore, liveMgr *live.Manager, fetcher *history.Fetcher, sup *supervisor.Supervisor) *Server {
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		store:    store,
		live:     liveMgr,
		history:  fetcher,
		sup:      sup,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/status", s.handleStatus)
	r.Get("/pages/{page}", s.handlePageGate)

	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/refresh", s.handleRefresh)
	r.With(s.authMiddleware).Post("/auth/logout", s.handleLogout)
	r.With(s.authMiddleware).Get("/auth/me", s.handleGetMe)

	r.With(s.authMiddleware).Get("/readings/history", s.handleHistory)
	r.With(s.authMiddleware).Get("/readings/live", s.handleLive)
	r.With(s.authMiddleware).Post("/setup-requests", s.handleCreateSetupRequest)

	return r
}

type registerRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type registerResponse struct {
	UserID     string `json:"userId"`
	RedirectTo string `json:"redirectTo"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	result, err := s.sessions.Register(r.Context(), session.RegisterInput{
		Name:            req.Name,
		Email:           req.Email,
		Phone:           req.Phone,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		switch {
		case errors.Is(err, session.ErrMissingFields):
			writeError(w, http.StatusBadRequest, "missing_fields")
		case errors.Is(err, session.ErrPasswordMismatch):
			writeError(w, http.StatusBadRequest, "password_mismatch")
		case errors.Is(err, session.ErrEmailInUse):
			writeError(w, http.StatusConflict, "email_in_use")
		default:
			writeBackendError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		UserID:     result.PublicUserID.String(),
		RedirectTo: result.RedirectTo,
	})
}

type loginRequest struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	User         userSummary `json:"user"`
}

type userSummary struct {
	AccountID string `json:"accountId"`
	UserID    string `json:"userId"`
	Name      string `json:"name"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	result, err := s.sessions.Login(r.Context(), session.LoginInput{
		UserID:   req.UserID,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, session.ErrMissingFields):
			writeError(w, http.StatusBadRequest, "missing_credentials")
		case errors.Is(err, session.ErrInvalidCredential):
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
		case errors.Is(err, session.ErrInvalidUserID):
			writeError(w, http.StatusUnauthorized, "invalid_user_id")
		default:
			writeBackendError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		User: userSummary{
			AccountID: result.Profile.AccountID,
			UserID:    result.Profile.PublicUserID.String(),
			Name:      result.Profile.Name,
		},
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "missing_refresh_token")
		return
	}

	result, err := s.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefresh) {
			writeError(w, http.StatusUnauthorized, "invalid_refresh_token")
			return
		}
		writeBackendError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		User: userSummary{
			AccountID: result.Profile.AccountID,
			UserID:    result.Profile.PublicUserID.String(),
			Name:      result.Profile.Name,
		},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	if err := s.sessions.Logout(r.Context(), claims.AccountID); err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	writeJSON(w, http.StatusOK, userSummary{
		AccountID: claims.AccountID,
		UserID:    claims.PublicUserID,
		Name:      claims.Name,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	ownerID, err := claims.OwnerID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return
	}

	raw := r.URL.Query().Get("range")
	if raw == "" {
		raw = string(model.RangeDay)
	}
	timeRange, err := model.ParseTimeRange(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_range")
		return
	}

	series, err := s.history.FetchRange(r.Context(), ownerID, timeRange)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

type liveEvent struct {
	Empty   bool                 `json:"empty"`
	Reading *model.SensorReading `json:"reading,omitempty"`
}

// handleLive streams latest-reading updates as server-sent events until the
// client disconnects or the subscription terminates.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	ownerID, err := claims.OwnerID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	handle := s.live.Subscribe(r.Context(), ownerID)
	defer s.live.Unsubscribe(handle)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-handle.Done():
			if err := handle.Err(); err != nil {
				writeSSE(w, flusher, "error", map[string]string{"error": err.Error()})
			}
			return
		case update := <-handle.Updates():
			event := liveEvent{Empty: update.Empty}
			if !update.Empty {
				reading := update.Reading
				event.Reading = &reading
			}
			writeSSE(w, flusher, "reading", event)
		}
	}
}

type setupRequestInput struct {
	Address       string `json:"address"`
	PreferredDate string `json:"preferredDate"`
	Notes         string `json:"notes"`
}

func (s *Server) handleCreateSetupRequest(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var req setupRequestInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Address = strings.TrimSpace(req.Address)
	req.PreferredDate = strings.TrimSpace(req.PreferredDate)
	if req.Address == "" || req.PreferredDate == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	request := model.SetupRequest{
		ID:            uuid.NewString(),
		AccountID:     claims.AccountID,
		Address:       req.Address,
		PreferredDate: req.PreferredDate,
		Notes:         strings.TrimSpace(req.Notes),
		Status:        model.SetupRequestPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.CreateSetupRequest(r.Context(), request); err != nil {
		writeBackendError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": request.ID, "status": request.Status})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sup.State())
}

type gateResponse struct {
	Page     string `json:"page"`
	Redirect string `json:"redirect,omitempty"`
}

// handlePageGate answers the redirect question for a page load. Auth is
// optional here: an absent or invalid token just means signed-out.
func (s *Server) handlePageGate(w http.ResponseWriter, r *http.Request) {
	var page session.Page
	switch chi.URLParam(r, "page") {
	case string(session.PageLogin):
		page = session.PageLogin
	case string(session.PageRegister):
		page = session.PageRegister
	case string(session.PageDashboard):
		page = session.PageDashboard
	default:
		writeError(w, http.StatusNotFound, "unknown_page")
		return
	}

	signedIn := false
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		if _, err := s.sessions.ParseAccessToken(token); err == nil {
			signedIn = true
		}
	}
	fresh := r.URL.Query().Get("new") == "true"

	decision := session.Decide(signedIn, page, fresh)
	resp := gateResponse{Page: string(page)}
	if !decision.None() {
		resp.Redirect = string(decision.Redirect)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}

		claims, err := s.sessions.ParseAccessToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// writeBackendError maps the backend taxonomy onto HTTP: transient and
// offline failures are 503, access denied is 403, the rest is a plain 500.
func writeBackendError(w http.ResponseWriter, err error) {
	switch {
	case backend.IsOffline(err):
		writeError(w, http.StatusServiceUnavailable, "offline")
	case backend.IsPermissionDenied(err):
		writeError(w, http.StatusForbidden, "access_denied")
	case backend.Retryable(err):
		writeError(w, http.StatusServiceUnavailable, "backend_unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("event: " + event + "\ndata: " + string(data) + "\n\n"))
	flusher.Flush()
}
