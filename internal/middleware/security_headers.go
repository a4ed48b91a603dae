package middleware

import "net/http"

// NewSecurityHeadersMiddleware はJSONビューモデルを返すストアフロントAPI向けのレスポンスヘッダーを付与する。
// カートやセッションは訪問者ごとの内容なので、ハンドラーが明示しない限り共有キャッシュに載せない。
// Referrer-PolicyはreturnUrlを含むURLが外部サイトへ漏れないようsame-originにする。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "same-origin")
			h.Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}
