package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/storefront"
)

// OrderServiceInterface は注文関連のハンドラーが必要とするサービスインターフェース。
type OrderServiceInterface interface {
	// PlaceOrder はカートの内容で代金引換の注文を確定する。
	PlaceOrder(ctx context.Context, userID string, details storefront.CustomerDetails, lines []model.CartLine) (*model.Order, error)
	// Orders はユーザーの注文を新しい順に返す。
	Orders(ctx context.Context, userID string) ([]storefront.OrderView, error)
}

// CheckoutHandler はチェックアウトと注文履歴のHTTPハンドラー。
// ルーターでRequireUserのガードの内側に配置する。
type CheckoutHandler struct {
	service OrderServiceInterface
}

// NewCheckoutHandler はCheckoutHandlerを生成する。
func NewCheckoutHandler(service OrderServiceInterface) *CheckoutHandler {
	return &CheckoutHandler{service: service}
}

type checkoutRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type checkoutFormResponse struct {
	Cart          cartResponse `json:"cart"`
	Name          string       `json:"name"`
	Phone         string       `json:"phone"`
	Address       string       `json:"address"`
	PaymentMethod string       `json:"payment_method"`
}

// Checkout はチェックアウト画面の初期値を返す。配送先はプロフィールから補完する。
// GET /checkout
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	v, ok := requireVisitor(w, r)
	if !ok {
		return
	}

	resp := checkoutFormResponse{
		Cart:          toCartResponse(v.Cart.Lines()),
		PaymentMethod: model.PaymentMethodCOD,
	}
	if p := v.Session.State().Profile; p != nil {
		resp.Name, resp.Phone, resp.Address = p.FullName, p.Phone, p.Address
	}
	writeJSON(w, http.StatusOK, resp)
}

// PlaceOrder は注文を確定し、カートを空にして完了画面へリダイレクトする。
// POST /checkout
func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	v, ok := requireVisitor(w, r)
	if !ok {
		return
	}
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewUnauthorizedError())
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	_, err = h.service.PlaceOrder(r.Context(), userID, storefront.CustomerDetails{
		Name:    req.Name,
		Phone:   req.Phone,
		Address: req.Address,
	}, v.Cart.Lines())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	v.Cart.Clear()
	http.Redirect(w, r, storefront.OrderSuccessPath, http.StatusSeeOther)
}

// OrderSuccess は注文完了画面の内容を返す。
// GET /order-success
func (h *CheckoutHandler) OrderSuccess(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Thank you! Your order has been placed and will be paid on delivery.",
	})
}

// Orders はログイン中ユーザーの注文履歴を返す。
// GET /orders
func (h *CheckoutHandler) Orders(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewUnauthorizedError())
		return
	}

	views, err := h.service.Orders(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]orderResponse, len(views))
	for i, view := range views {
		resp[i] = toOrderResponse(view.Order, view.Steps)
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": resp})
}
