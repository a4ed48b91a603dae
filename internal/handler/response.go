package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/storefront/internal/cart"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/storefront"
)

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

func writeInvalidRequest(w http.ResponseWriter) {
	middleware.WriteAPIError(w, model.NewValidationAPIError("The request body could not be parsed."))
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	var ve *model.ValidationError
	if errors.As(err, &ve) {
		middleware.WriteAPIError(w, model.NewValidationAPIError(ve.Error()))
		return
	}
	switch {
	case errors.Is(err, model.ErrInvalidLogin):
		middleware.WriteAPIError(w, model.NewInvalidLoginError())
		return
	case errors.Is(err, model.ErrEmailTaken):
		middleware.WriteAPIError(w, model.NewEmailTakenError())
		return
	}

	var ne *model.NetworkError
	if errors.As(err, &ne) {
		slog.Warn("gateway unavailable", slog.String("error", err.Error()))
		middleware.WriteAPIError(w, model.NewGatewayUnavailableError())
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteAPIError(w, model.NewInternalError())
}

// --- レスポンス型 ---

type productResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Price       float64   `json:"price"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Stock       int       `json:"stock"`
	Image       string    `json:"image"`
	Popular     bool      `json:"popular"`
	CreatedAt   time.Time `json:"created_at"`
}

func toProductResponse(p *model.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Price:       p.Price,
		Category:    p.Category,
		Description: p.Description,
		Stock:       p.Stock,
		Image:       p.Image,
		Popular:     p.Popular,
		CreatedAt:   p.CreatedAt,
	}
}

func toProductResponses(ps []*model.Product) []productResponse {
	out := make([]productResponse, len(ps))
	for i, p := range ps {
		out[i] = toProductResponse(p)
	}
	return out
}

type categoryResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func toCategoryResponses(cs []*model.Category) []categoryResponse {
	out := make([]categoryResponse, len(cs))
	for i, c := range cs {
		out[i] = categoryResponse{ID: c.ID, Name: c.Name}
	}
	return out
}

type cartLineResponse struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Subtotal  float64 `json:"subtotal"`
}

type cartResponse struct {
	Items      []cartLineResponse `json:"items"`
	TotalItems int                `json:"total_items"`
	TotalPrice float64            `json:"total_price"`
}

// toCartResponse は行と合計を同じスナップショットから組み立てる。
func toCartResponse(lines []model.CartLine) cartResponse {
	items := make([]cartLineResponse, len(lines))
	for i, l := range lines {
		items[i] = cartLineResponse{
			ProductID: l.ProductID,
			Name:      l.Name,
			Price:     l.Price,
			Quantity:  l.Quantity,
			Subtotal:  l.Price * float64(l.Quantity),
		}
	}
	return cartResponse{Items: items, TotalItems: cart.TotalItems(lines), TotalPrice: cart.TotalPrice(lines)}
}

type orderItemResponse struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

type stepResponse struct {
	Status  string `json:"status"`
	Done    bool   `json:"done"`
	Current bool   `json:"current"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	UserID          string              `json:"user_id,omitempty"`
	TotalAmount     float64             `json:"total_amount"`
	Status          string              `json:"status"`
	PaymentMethod   string              `json:"payment_method"`
	CustomerName    string              `json:"customer_name"`
	CustomerPhone   string              `json:"customer_phone"`
	CustomerAddress string              `json:"customer_address"`
	CreatedAt       time.Time           `json:"created_at"`
	Items           []orderItemResponse `json:"items"`
	Steps           []stepResponse      `json:"steps,omitempty"`
}

func toOrderResponse(o *model.Order, steps []storefront.Step) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemResponse{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.Price,
		}
	}
	var stepResp []stepResponse
	for _, st := range steps {
		stepResp = append(stepResp, stepResponse{Status: string(st.Status), Done: st.Done, Current: st.Current})
	}
	return orderResponse{
		ID:              o.ID,
		UserID:          o.UserID,
		TotalAmount:     o.TotalAmount,
		Status:          string(o.Status),
		PaymentMethod:   o.PaymentMethod,
		CustomerName:    o.CustomerName,
		CustomerPhone:   o.CustomerPhone,
		CustomerAddress: o.CustomerAddress,
		CreatedAt:       o.CreatedAt,
		Items:           items,
		Steps:           stepResp,
	}
}

type profileResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	FullName  string `json:"full_name"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

func toProfileResponse(p *model.Profile) *profileResponse {
	if p == nil {
		return nil
	}
	return &profileResponse{
		ID:        p.ID,
		Email:     p.Email,
		Role:      string(p.Role),
		FullName:  p.FullName,
		Phone:     p.Phone,
		Address:   p.Address,
		AvatarURL: p.AvatarURL,
	}
}
