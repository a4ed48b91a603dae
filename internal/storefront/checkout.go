package storefront

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/storefront/internal/cart"
	"github.com/hitoshi/storefront/internal/model"
)

// OrderSuccessPath は注文確定後の遷移先。
const OrderSuccessPath = "/order-success"

// customerDetailsMessage は配送先情報が不足している場合のメッセージ。
const customerDetailsMessage = "Please fill in all customer details (Name, Phone, Address)."

// CustomerDetails は代金引換の配送先情報。
type CustomerDetails struct {
	Name    string
	Phone   string
	Address string
}

func (d CustomerDetails) trimmed() CustomerDetails {
	return CustomerDetails{
		Name:    strings.TrimSpace(d.Name),
		Phone:   strings.TrimSpace(d.Phone),
		Address: strings.TrimSpace(d.Address),
	}
}

// PlaceOrder はカートの内容で代金引換の注文を確定する。
// 明細価格と合計金額は商品テーブルの現在価格で確定し、カート上の合計と異なる場合はログに残す。
// カートのクリアは呼び出し側で行う。
func (s *Service) PlaceOrder(ctx context.Context, userID string, details CustomerDetails, lines []model.CartLine) (*model.Order, error) {
	// 1. 入力検証
	details = details.trimmed()
	if details.Name == "" || details.Phone == "" || details.Address == "" {
		return nil, model.NewValidationAPIError(customerDetailsMessage)
	}
	if len(lines) == 0 {
		return nil, model.NewEmptyCartError()
	}

	// 2. 注文の組み立て
	order := &model.Order{
		ID:              uuid.NewString(),
		UserID:          userID,
		TotalAmount:     cart.TotalPrice(lines),
		Status:          model.OrderStatusPending,
		PaymentMethod:   model.PaymentMethodCOD,
		CustomerName:    details.Name,
		CustomerPhone:   details.Phone,
		CustomerAddress: details.Address,
		CreatedAt:       s.now(),
	}
	for _, l := range lines {
		order.Items = append(order.Items, model.OrderItem{
			ID:        uuid.NewString(),
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Price:     l.Price,
		})
	}
	clientTotal := order.TotalAmount

	// 3. 注文と明細を同一トランザクションで保存
	if err := s.orders.CreateWithItems(ctx, order); err != nil {
		var nf *model.NotFoundError
		if errors.As(err, &nf) {
			return nil, model.NewProductNotFoundError(nf.ID)
		}
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	if math.Abs(order.TotalAmount-clientTotal) >= 0.005 {
		s.logger.Warn("cart total differs from current prices",
			slog.String("order_id", order.ID),
			slog.Float64("cart_total", clientTotal),
			slog.Float64("order_total", order.TotalAmount),
		)
	}

	s.metrics.RecordOrderPlaced(order.TotalAmount)
	s.logger.Info("order placed",
		slog.String("order_id", order.ID),
		slog.String("user_id", userID),
		slog.Int("items", len(order.Items)),
	)

	// 4. ライブカートから除去
	s.SyncCart(ctx, userID, nil)

	return order, nil
}
