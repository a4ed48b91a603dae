package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/storefront"
)

// AdminServiceInterface は管理画面のハンドラーが必要とするサービスインターフェース。
type AdminServiceInterface interface {
	Dashboard(ctx context.Context) (*model.DashboardStats, error)
	AdminProducts(ctx context.Context) ([]*model.Product, error)
	AddProduct(ctx context.Context, in storefront.ProductInput) (*model.Product, error)
	// AddCategory はカテゴリを追加し、名前順のカテゴリ一覧を返す。既存の名前は無視する。
	AddCategory(ctx context.Context, name string) ([]*model.Category, error)
	AdminOrders(ctx context.Context) ([]*model.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID, rawStatus string) error
	LiveCarts(ctx context.Context) ([]model.ActiveCart, error)
}

// AdminHandler は管理画面のHTTPハンドラー。
// ルーターでRequireRole(admin)のガードの内側に配置する。
type AdminHandler struct {
	service AdminServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

type dashboardResponse struct {
	Products    int `json:"products"`
	Orders      int `json:"orders"`
	Users       int `json:"users"`
	ActiveCarts int `json:"active_carts"`
}

type addProductRequest struct {
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Image       string  `json:"image"`
	Stock       int     `json:"stock"`
	Popular     bool    `json:"popular"`
}

type addCategoryRequest struct {
	Name string `json:"name"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

type activeCartResponse struct {
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	TotalItems int       `json:"total_items"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Dashboard は管理ダッシュボードの集計値を返す。
// GET /admin
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Dashboard(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboardResponse{
		Products:    stats.Products,
		Orders:      stats.Orders,
		Users:       stats.Users,
		ActiveCarts: stats.ActiveCarts,
	})
}

// Products は全商品を返す。
// GET /admin/products
func (h *AdminHandler) Products(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.AdminProducts(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": toProductResponses(products)})
}

// AddProduct は商品を追加する。
// POST /admin/products
func (h *AdminHandler) AddProduct(w http.ResponseWriter, r *http.Request) {
	var req addProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	product, err := h.service.AddProduct(r.Context(), storefront.ProductInput{
		Name:        req.Name,
		Price:       req.Price,
		Category:    req.Category,
		Description: req.Description,
		Image:       req.Image,
		Stock:       req.Stock,
		Popular:     req.Popular,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(product))
}

// AddCategory はカテゴリを追加し、カテゴリ一覧を返す。
// POST /admin/categories
func (h *AdminHandler) AddCategory(w http.ResponseWriter, r *http.Request) {
	var req addCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	categories, err := h.service.AddCategory(r.Context(), req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": toCategoryResponses(categories)})
}

// Orders は全ユーザーの注文を新しい順に返す。
// GET /admin/orders
func (h *AdminHandler) Orders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.AdminOrders(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o, nil)
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": resp})
}

// UpdateOrderStatus は注文ステータスを更新する。
// PATCH /admin/orders/{id}/status
func (h *AdminHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateOrderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	if err := h.service.UpdateOrderStatus(r.Context(), chi.URLParam(r, "id"), req.Status); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LiveCarts はログイン中ユーザーの保存済みカートを返す。
// GET /admin/carts
func (h *AdminHandler) LiveCarts(w http.ResponseWriter, r *http.Request) {
	carts, err := h.service.LiveCarts(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	resp := make([]activeCartResponse, len(carts))
	for i, c := range carts {
		resp[i] = activeCartResponse{
			UserID:     c.UserID,
			Email:      c.Email,
			TotalItems: c.TotalItems,
			UpdatedAt:  c.UpdatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"carts": resp})
}
