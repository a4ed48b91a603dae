// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/storefront/internal/guard"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/session"
	"github.com/hitoshi/storefront/internal/visitor"
)

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	// SettleWait はサインイン後、プロフィールの解決を待つ最大時間。
	// 待ち切れなくてもリダイレクトし、遷移先のガードが待機を引き継ぐ。
	SettleWait time.Duration
	// CSRF はサインイン・サインアウト時に再発行するCSRFトークンCookieの設定。
	CSRF middleware.CSRFConfig
}

// AuthHandler はサインイン・サインアップ・サインアウトのHTTPハンドラー。
type AuthHandler struct {
	config AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(config AuthHandlerConfig) *AuthHandler {
	if config.SettleWait <= 0 {
		config.SettleWait = guard.DefaultWait
	}
	return &AuthHandler{config: config}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type sessionStateResponse struct {
	Phase   string           `json:"phase"`
	Loading bool             `json:"loading"`
	User    *userResponse    `json:"user"`
	Profile *profileResponse `json:"profile"`
	Role    string           `json:"role,omitempty"`
}

// Login はメールアドレスとパスワードでサインインし、returnUrlへリダイレクトする。
// POST /login?returnUrl=/checkout
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	v := middleware.VisitorFromContext(r.Context())
	if v == nil {
		middleware.WriteAPIError(w, model.NewGatewayUnavailableError())
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	if _, err := v.Gateway.SignIn(r.Context(), strings.TrimSpace(req.Email), req.Password); err != nil {
		handleServiceError(w, err)
		return
	}

	h.settle(r.Context(), v)
	h.rotateCSRF(w, v)
	http.Redirect(w, r, safeReturnURL(r.URL.Query().Get("returnUrl")), http.StatusSeeOther)
}

// Signup はアカウントを作成してサインインし、returnUrlへリダイレクトする。
// POST /signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	v := middleware.VisitorFromContext(r.Context())
	if v == nil {
		middleware.WriteAPIError(w, model.NewGatewayUnavailableError())
		return
	}

	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	if _, err := v.Gateway.SignUp(r.Context(), strings.TrimSpace(req.Email), req.Password, strings.TrimSpace(req.FullName)); err != nil {
		handleServiceError(w, err)
		return
	}

	h.settle(r.Context(), v)
	h.rotateCSRF(w, v)
	http.Redirect(w, r, safeReturnURL(r.URL.Query().Get("returnUrl")), http.StatusSeeOther)
}

// Logout はサインアウトしてログイン画面へリダイレクトする。
// ゲートウェイの無効化に失敗してもローカルの状態は破棄される。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	v := middleware.VisitorFromContext(r.Context())
	if v == nil {
		http.Redirect(w, r, session.LoginPath, http.StatusSeeOther)
		return
	}

	if err := v.Session.SignOut(r.Context()); err != nil {
		slog.Warn("sign out did not reach the gateway",
			slog.String("visitor_id", v.ID),
			slog.String("error", err.Error()),
		)
	}

	h.rotateCSRF(w, v)
	location, ok := v.TakeNavigation()
	if !ok {
		location = session.LoginPath
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

// Session は訪問者の現在の認証状態を返す。
// GET /session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	v := middleware.VisitorFromContext(r.Context())
	if v == nil {
		middleware.WriteAPIError(w, model.NewGatewayUnavailableError())
		return
	}
	writeJSON(w, http.StatusOK, toSessionStateResponse(v.Session.State()))
}

// settle はサインイン後の状態解決を一定時間だけ待つ。
func (h *AuthHandler) settle(ctx context.Context, v *visitor.Visitor) {
	ctx, cancel := context.WithTimeout(ctx, h.config.SettleWait)
	defer cancel()
	if _, err := v.Session.WaitFor(ctx, func(s session.State) bool {
		return s.Authenticated() && !s.Resolving()
	}); err != nil {
		slog.Debug("session not settled before redirect",
			slog.String("visitor_id", v.ID),
			slog.String("error", err.Error()),
		)
	}
}

// rotateCSRF は権限が変わった訪問者のCSRFトークンを再発行する。
func (h *AuthHandler) rotateCSRF(w http.ResponseWriter, v *visitor.Visitor) {
	if _, err := middleware.RotateCSRFToken(w, h.config.CSRF); err != nil {
		slog.Error("failed to rotate CSRF token",
			slog.String("visitor_id", v.ID),
			slog.String("error", err.Error()),
		)
	}
}

func toSessionStateResponse(st session.State) sessionStateResponse {
	resp := sessionStateResponse{
		Phase:   string(st.Phase),
		Loading: st.Loading,
		Profile: toProfileResponse(st.Profile),
		Role:    string(st.Role()),
	}
	if st.User != nil {
		resp.User = &userResponse{ID: st.User.ID, Email: st.User.Email}
	}
	return resp
}

// safeReturnURL はreturnUrlが同一オリジンのパスであればそれを、そうでなければ"/"を返す。
func safeReturnURL(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, `\`) {
		return guard.HomePath
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return guard.HomePath
	}
	return u.RequestURI()
}
