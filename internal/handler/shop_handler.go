package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/storefront"
	"github.com/hitoshi/storefront/internal/visitor"
)

// AdminHomePath は管理者がショップを開いたときの遷移先。
const AdminHomePath = "/admin"

// CatalogServiceInterface は商品一覧・カートのハンドラーが必要とするサービスインターフェース。
type CatalogServiceInterface interface {
	// Shop は商品一覧とカテゴリ一覧を返す。
	Shop(ctx context.Context, category string) (*storefront.ShopView, error)
	// Product は商品詳細を返す。存在しなければPRODUCT_NOT_FOUNDを返す。
	Product(ctx context.Context, id string) (*model.Product, error)
	// SyncCart はログイン中ユーザーのカートを管理画面向けに保存する。
	SyncCart(ctx context.Context, userID string, lines []model.CartLine)
}

// ShopHandler は商品一覧・商品詳細・カートのHTTPハンドラー。
type ShopHandler struct {
	service CatalogServiceInterface
}

// NewShopHandler はShopHandlerを生成する。
func NewShopHandler(service CatalogServiceInterface) *ShopHandler {
	return &ShopHandler{service: service}
}

type shopResponse struct {
	Products   []productResponse  `json:"products"`
	Categories []categoryResponse `json:"categories"`
	Category   string             `json:"category"`
}

type productDetailResponse struct {
	Product productResponse `json:"product"`
	InCart  int             `json:"in_cart"`
}

type addCartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  *int   `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

// Shop は商品一覧を返す。管理者は管理画面へリダイレクトする。
// GET /shop?category=Mugs
func (h *ShopHandler) Shop(w http.ResponseWriter, r *http.Request) {
	if v := middleware.VisitorFromContext(r.Context()); v != nil {
		st := v.Session.State()
		if !st.Resolving() && st.Profile.IsAdmin() {
			http.Redirect(w, r, AdminHomePath, http.StatusSeeOther)
			return
		}
	}

	view, err := h.service.Shop(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, shopResponse{
		Products:   toProductResponses(view.Products),
		Categories: toCategoryResponses(view.Categories),
		Category:   view.Category,
	})
}

// Product は商品詳細とカート内の数量を返す。
// GET /product/{id}
func (h *ShopHandler) Product(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.Product(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := productDetailResponse{Product: toProductResponse(product)}
	if v := middleware.VisitorFromContext(r.Context()); v != nil {
		resp.InCart = v.Cart.Quantity(product.ID)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Cart はカートの内容を返す。
// GET /cart
func (h *ShopHandler) Cart(w http.ResponseWriter, r *http.Request) {
	v, ok := requireVisitor(w, r)
	if !ok {
		return
	}
	writeCart(w, v)
}

// AddToCart は商品をカートに追加する。数量の省略時は1。
// POST /cart/items
func (h *ShopHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	v, ok := requireVisitor(w, r)
	if !ok {
		return
	}

	var req addCartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	// 価格と名前はクライアントの値を使わず商品テーブルから取る
	product, err := h.service.Product(r.Context(), req.ProductID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if err := v.Cart.AddItem(*product, qty); err != nil {
		handleServiceError(w, err)
		return
	}

	h.syncCart(r.Context(), v)
	writeCart(w, v)
}

// UpdateCartItem はカート行の数量を設定する。0以下は削除として扱い、上限超過は400。
// PUT /cart/items/{productID}
func (h *ShopHandler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	v, ok := requireVisitor(w, r)
	if !ok {
		return
	}

	var req updateCartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	if err := v.Cart.UpdateQuantity(chi.URLParam(r, "productID"), req.Quantity); err != nil {
		handleServiceError(w, err)
		return
	}
	h.syncCart(r.Context(), v)
	writeCart(w, v)
}

// RemoveCartItem はカート行を削除する。存在しない行の削除は成功扱い。
// DELETE /cart/items/{productID}
func (h *ShopHandler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	v, ok := requireVisitor(w, r)
	if !ok {
		return
	}

	v.Cart.RemoveItem(chi.URLParam(r, "productID"))
	h.syncCart(r.Context(), v)
	writeCart(w, v)
}

// ClearCart はカートを空にする。
// DELETE /cart
func (h *ShopHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	v, ok := requireVisitor(w, r)
	if !ok {
		return
	}

	v.Cart.Clear()
	h.syncCart(r.Context(), v)
	writeCart(w, v)
}

func (h *ShopHandler) syncCart(ctx context.Context, v *visitor.Visitor) {
	if st := v.Session.State(); st.User != nil {
		h.service.SyncCart(ctx, st.User.ID, v.Cart.Lines())
	}
}

func writeCart(w http.ResponseWriter, v *visitor.Visitor) {
	writeJSON(w, http.StatusOK, toCartResponse(v.Cart.Lines()))
}

// requireVisitor はリクエストの訪問者を返す。訪問者ミドルウェアを通っていなければ503を書き込む。
func requireVisitor(w http.ResponseWriter, r *http.Request) (*visitor.Visitor, bool) {
	v := middleware.VisitorFromContext(r.Context())
	if v == nil {
		middleware.WriteAPIError(w, model.NewGatewayUnavailableError())
		return nil, false
	}
	return v, true
}
