package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/middleware"
	"github.com/MrEthical07/goGuard/rbac"
)

const refreshCookie = "refresh_token"

// maxBody caps JSON request bodies.
const maxBody = 1 << 16

type routes struct {
	engine *goGuard.Engine
	logger *zap.Logger
}

// newRouter mounts the gateway endpoints. metrics may be nil.
func newRouter(engine *goGuard.Engine, logger *zap.Logger, metrics http.Handler, opts ...middleware.Option) http.Handler {
	rt := &routes{engine: engine, logger: logger}

	public := middleware.Chain(
		middleware.ClientInfo(opts...),
	)
	limited := middleware.Chain(
		middleware.RateLimit(engine, opts...),
	)
	authed := middleware.Chain(
		middleware.RateLimit(engine, opts...),
		middleware.Authenticate(engine, opts...),
		middleware.UserRateLimit(engine, opts...),
	)
	mutating := middleware.Chain(authed, middleware.CSRF(engine, opts...))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	mux.Handle("POST /auth/register", limited(http.HandlerFunc(rt.signUp)))
	mux.Handle("POST /auth/login", public(http.HandlerFunc(rt.login)))
	mux.Handle("POST /auth/refresh", public(http.HandlerFunc(rt.refresh)))

	mux.Handle("GET /auth/csrf", authed(http.HandlerFunc(rt.csrfToken)))
	mux.Handle("GET /auth/sessions", authed(http.HandlerFunc(rt.sessions)))
	mux.Handle("POST /auth/logout", mutating(http.HandlerFunc(rt.logout)))
	mux.Handle("POST /auth/logout/all", mutating(http.HandlerFunc(rt.logoutAll)))
	mux.Handle("POST /auth/password", mutating(http.HandlerFunc(rt.changePassword)))

	mux.Handle("POST /users", mutating(http.HandlerFunc(rt.createUser)))
	mux.Handle("PUT /teams/{team}/approvals/{user}", mutating(http.HandlerFunc(rt.approve)))
	mux.Handle("DELETE /teams/{team}/approvals/{user}", mutating(http.HandlerFunc(rt.approve)))

	mux.Handle("GET /profiles/{id}", middleware.Chain(
		authed,
		middleware.RequirePermission(engine, rbac.ViewProfile, rbac.ResourceProfile, targetUser, opts...),
	)(http.HandlerFunc(rt.profile)))
	mux.Handle("GET /teams/{team}/statistics", middleware.Chain(
		authed,
		middleware.RequirePermission(engine, rbac.ViewStatistics, rbac.ResourceStatistics, targetTeam, opts...),
	)(http.HandlerFunc(rt.statistics)))
	mux.Handle("PUT /teams/{team}/statistics", middleware.Chain(
		mutating,
		middleware.RequirePermission(engine, rbac.EditStatistics, rbac.ResourceStatistics, targetTeam, opts...),
	)(http.HandlerFunc(rt.statistics)))

	return mux
}

func targetUser(r *http.Request) rbac.Context {
	return rbac.Context{TargetUserID: r.PathValue("id")}
}

// targetTeam names the team only. Coach approval is looked up by the engine.
func targetTeam(r *http.Request) rbac.Context {
	return rbac.Context{TargetTeamID: r.PathValue("team")}
}

type signUpBody struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (rt *routes) signUp(w http.ResponseWriter, r *http.Request) {
	var body signUpBody
	if !decode(w, r, &body) {
		return
	}
	err := rt.engine.SignUp(r.Context(), goGuard.SignUpRequest{
		UserID:   body.UserID,
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		rt.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

type createUserBody struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	TeamID   string `json:"team_id"`
}

func (rt *routes) createUser(w http.ResponseWriter, r *http.Request) {
	auth, _ := middleware.AuthResultFromContext(r.Context())
	var body createUserBody
	if !decode(w, r, &body) {
		return
	}
	err := rt.engine.CreateUser(r.Context(), auth, goGuard.RegisterRequest{
		UserID:   body.UserID,
		Email:    body.Email,
		Password: body.Password,
		Role:     body.Role,
		TeamID:   body.TeamID,
	})
	if err != nil {
		rt.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (rt *routes) approve(w http.ResponseWriter, r *http.Request) {
	auth, _ := middleware.AuthResultFromContext(r.Context())
	userID, teamID := r.PathValue("user"), r.PathValue("team")

	var err error
	if r.Method == http.MethodDelete {
		err = rt.engine.RevokeApproval(r.Context(), auth, userID, teamID)
	} else {
		err = rt.engine.ApproveAccess(r.Context(), auth, userID, teamID)
	}
	if err != nil {
		rt.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	SessionID   string    `json:"session_id,omitempty"`
	CSRFToken   string    `json:"csrf_token,omitempty"`
	RiskFlags   []string  `json:"risk_flags,omitempty"`
}

func (rt *routes) login(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if !decode(w, r, &body) {
		return
	}

	res, err := rt.engine.Authenticate(r.Context(), body.Email, body.Password)
	if err != nil {
		rt.fail(w, err)
		return
	}

	csrfToken, err := rt.engine.IssueCSRFToken(r.Context(), res.Session.SessionID)
	if err != nil {
		rt.fail(w, err)
		return
	}

	setRefreshCookie(w, r, res.Tokens.RefreshToken, res.Tokens.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: res.Tokens.AccessToken,
		ExpiresAt:   res.Tokens.AccessExpiresAt,
		SessionID:   res.Session.SessionID,
		CSRFToken:   csrfToken,
		RiskFlags:   res.Session.RiskFlags,
	})
}

func (rt *routes) refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookie)
	if err != nil || cookie.Value == "" {
		rt.fail(w, goGuard.ErrTokenInvalid)
		return
	}

	pair, err := rt.engine.Refresh(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, goGuard.ErrTokenReplayed) || errors.Is(err, goGuard.ErrSessionNotFound) {
			clearRefreshCookie(w, r)
		}
		rt.fail(w, err)
		return
	}

	setRefreshCookie(w, r, pair.RefreshToken, pair.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: pair.AccessToken,
		ExpiresAt:   pair.AccessExpiresAt,
	})
}

func (rt *routes) csrfToken(w http.ResponseWriter, r *http.Request) {
	auth, _ := middleware.AuthResultFromContext(r.Context())
	token, err := rt.engine.IssueCSRFToken(r.Context(), auth.SessionID)
	if err != nil {
		rt.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

type sessionView struct {
	SessionID    string    `json:"session_id"`
	IPAddress    string    `json:"ip,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessAt time.Time `json:"last_access_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	Current      bool      `json:"current"`
	RiskFlags    []string  `json:"risk_flags,omitempty"`
}

func (rt *routes) sessions(w http.ResponseWriter, r *http.Request) {
	auth, _ := middleware.AuthResultFromContext(r.Context())
	list, err := rt.engine.Sessions(r.Context(), auth.UserID)
	if err != nil {
		rt.fail(w, err)
		return
	}

	out := make([]sessionView, 0, len(list))
	for _, s := range list {
		out = append(out, sessionView{
			SessionID:    s.SessionID,
			IPAddress:    s.IPAddress,
			CreatedAt:    s.CreatedAt,
			LastAccessAt: s.LastAccessAt,
			ExpiresAt:    s.ExpiresAt,
			Current:      s.SessionID == auth.SessionID,
			RiskFlags:    s.RiskFlags,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (rt *routes) logout(w http.ResponseWriter, r *http.Request) {
	auth, _ := middleware.AuthResultFromContext(r.Context())
	if err := rt.engine.LogoutSession(r.Context(), auth.SessionID); err != nil {
		rt.fail(w, err)
		return
	}
	clearRefreshCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func (rt *routes) logoutAll(w http.ResponseWriter, r *http.Request) {
	auth, _ := middleware.AuthResultFromContext(r.Context())
	n, err := rt.engine.RevokeAllSessions(r.Context(), auth.UserID)
	if err != nil {
		rt.fail(w, err)
		return
	}
	clearRefreshCookie(w, r)
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

type passwordBody struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (rt *routes) changePassword(w http.ResponseWriter, r *http.Request) {
	auth, _ := middleware.AuthResultFromContext(r.Context())
	var body passwordBody
	if !decode(w, r, &body) {
		return
	}
	err := rt.engine.ChangePassword(r.Context(), goGuard.ChangePasswordRequest{
		UserID:      auth.UserID,
		SessionID:   auth.SessionID,
		OldPassword: body.OldPassword,
		NewPassword: body.NewPassword,
	})
	if err != nil {
		rt.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *routes) profile(w http.ResponseWriter, r *http.Request) {
	auth, _ := middleware.AuthResultFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{
		"user_id":   r.PathValue("id"),
		"viewer_id": auth.UserID,
	})
}

func (rt *routes) statistics(w http.ResponseWriter, r *http.Request) {
	auth, _ := middleware.AuthResultFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{
		"team_id": r.PathValue("team"),
		"role":    auth.Role,
		"action":  r.Method,
	})
}

func (rt *routes) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, goGuard.ErrBackendUnavailable) {
		rt.logger.Error("request failed", zap.Error(err))
	}
	middleware.WriteError(w, err)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		middleware.WriteError(w, goGuard.ErrInvalidInput)
		return false
	}
	return true
}

func setRefreshCookie(w http.ResponseWriter, r *http.Request, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    token,
		Path:     "/auth/refresh",
		Expires:  expires,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearRefreshCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     "/auth/refresh",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
