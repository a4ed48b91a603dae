package handler

import (
	"net/http"

	"github.com/hitoshi/storefront/internal/guard"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/storefront"
	"github.com/hitoshi/storefront/internal/user"
)

// VisitorSession はリクエストの訪問者のセッションマネージャーをguard.Waiterとして返す。
// 訪問者がいなければ型付きnilではなくnilインターフェースを返す。
func VisitorSession(r *http.Request) guard.Waiter {
	v := middleware.VisitorFromContext(r.Context())
	if v == nil {
		return nil
	}
	return v.Session
}

// --- compile-time interface checks ---

var _ guard.Lookup = VisitorSession
var _ CatalogServiceInterface = (*storefront.Service)(nil)
var _ OrderServiceInterface = (*storefront.Service)(nil)
var _ AdminServiceInterface = (*storefront.Service)(nil)
var _ UserServiceInterface = (*user.Service)(nil)
