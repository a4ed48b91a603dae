// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/visitor"
)

const (
	visitorCookieName = "visitor_id"
	// refreshCookieName はプロセス再起動や訪問者の破棄をまたいでログインを復元するためのCookie。
	refreshCookieName = "refresh_token"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// visitorContextKey はリクエストコンテキストに訪問者を格納するためのキー。
var visitorContextKey = contextKey("visitor")

// VisitorStore は訪問者の検索と生成に必要なインターフェース。
// visitor.Registryが実装する。
type VisitorStore interface {
	Get(id string) (*visitor.Visitor, bool)
	Create(refreshToken string) *visitor.Visitor
}

// VisitorConfig は訪問者ミドルウェアの設定。
type VisitorConfig struct {
	CookieSecure bool
	CookieDomain string
	// MaxAge は訪問者Cookieとリフレッシュトークンのcookieの有効秒数。
	MaxAge int
}

// NewVisitorMiddleware はCookieから訪問者を特定し、リクエストコンテキストに注入するミドルウェアを返す。
// 訪問者がいなければ生成し、リフレッシュトークンのCookieがあればそこからセッションを復元する。
// ログイン中の訪問者はリクエストごとにアクセストークンの期限を確認し、必要ならリフレッシュする。
func NewVisitorMiddleware(store VisitorStore, config VisitorConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Cookieから訪問者を取得、なければ生成
			var (
				v  *visitor.Visitor
				ok bool
			)
			if cookie, err := r.Cookie(visitorCookieName); err == nil && cookie.Value != "" {
				v, ok = store.Get(cookie.Value)
			}
			storedRefresh := ""
			if cookie, err := r.Cookie(refreshCookieName); err == nil {
				storedRefresh = cookie.Value
			}
			if !ok {
				v = store.Create(storedRefresh)
				if v == nil {
					WriteAPIError(w, model.NewGatewayUnavailableError())
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     visitorCookieName,
					Value:    v.ID,
					Path:     "/",
					Domain:   config.CookieDomain,
					MaxAge:   config.MaxAge,
					HttpOnly: true,
					Secure:   config.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			} else {
				// 2. 期限切れ間近のアクセストークンをリフレッシュ
				keepSessionFresh(r.Context(), v)
			}

			// 3. レスポンス送信時にリフレッシュトークンのCookieを同期
			sw := &credentialWriter{
				ResponseWriter: w,
				visitor:        v,
				stored:         storedRefresh,
				config:         config,
			}
			ctx := ContextWithVisitor(r.Context(), v)
			next.ServeHTTP(sw, r.WithContext(ctx))
			sw.sync()
		})
	}
}

// keepSessionFresh はゲートウェイにセッションを問い合わせ、必要ならリフレッシュさせる。
// リフレッシュトークンが拒否された場合はローカルのセッションを破棄する。
func keepSessionFresh(ctx context.Context, v *visitor.Visitor) {
	if v.Gateway.CurrentRefreshToken() == "" {
		return
	}
	_, err := v.Gateway.GetCurrentSession(ctx)
	if err == nil {
		return
	}
	if model.IsInvalidCredential(err) {
		if err := v.Gateway.SignOut(ctx); err != nil {
			slog.Warn("failed to sign out after rejected refresh",
				slog.String("visitor_id", v.ID),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	var ne *model.NetworkError
	if errors.As(err, &ne) {
		slog.Warn("session refresh failed",
			slog.String("visitor_id", v.ID),
			slog.String("error", err.Error()),
		)
	}
}

// credentialWriter はヘッダー送信直前にリフレッシュトークンのCookieを最新の値に合わせる。
type credentialWriter struct {
	http.ResponseWriter
	visitor *visitor.Visitor
	stored  string
	config  VisitorConfig
	synced  bool
}

func (cw *credentialWriter) WriteHeader(code int) {
	cw.sync()
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *credentialWriter) Write(b []byte) (int, error) {
	cw.sync()
	return cw.ResponseWriter.Write(b)
}

// Unwrap はhttp.ResponseControllerから元のResponseWriterを参照できるようにする。
func (cw *credentialWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}

func (cw *credentialWriter) sync() {
	if cw.synced {
		return
	}
	cw.synced = true

	current := cw.visitor.Gateway.CurrentRefreshToken()
	if current == cw.stored {
		return
	}
	cookie := &http.Cookie{
		Name:     refreshCookieName,
		Value:    current,
		Path:     "/",
		Domain:   cw.config.CookieDomain,
		MaxAge:   cw.config.MaxAge,
		HttpOnly: true,
		Secure:   cw.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if current == "" {
		cookie.MaxAge = -1
	}
	http.SetCookie(cw.ResponseWriter, cookie)
}

// VisitorFromContext はリクエストコンテキストから訪問者を取得する。
// 訪問者ミドルウェアを通過していなければnilを返す。
func VisitorFromContext(ctx context.Context) *visitor.Visitor {
	v, _ := ctx.Value(visitorContextKey).(*visitor.Visitor)
	return v
}

// ContextWithVisitor はコンテキストに訪問者を注入する。
func ContextWithVisitor(ctx context.Context, v *visitor.Visitor) context.Context {
	return context.WithValue(ctx, visitorContextKey, v)
}

// UserIDFromContext はリクエストの訪問者がログイン中であればユーザーIDを返す。
func UserIDFromContext(ctx context.Context) (string, error) {
	v := VisitorFromContext(ctx)
	if v == nil {
		return "", errors.New("visitor not found in context")
	}
	st := v.Session.State()
	if st.User == nil {
		return "", errors.New("user not signed in")
	}
	return st.User.ID, nil
}
