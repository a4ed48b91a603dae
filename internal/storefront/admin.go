package storefront

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/storefront/internal/model"
)

// adminOrderLimit は管理画面の注文一覧の最大件数。
const adminOrderLimit = 100

// ProductInput は管理画面からの商品追加の入力。
type ProductInput struct {
	Name        string
	Price       float64
	Category    string
	Description string
	Image       string
	Stock       int
	Popular     bool
}

// Dashboard は管理ダッシュボードの集計値を返す。
func (s *Service) Dashboard(ctx context.Context) (*model.DashboardStats, error) {
	var (
		stats model.DashboardStats
		err   error
	)
	if stats.Products, err = s.products.Count(ctx); err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}
	if stats.Orders, err = s.orders.Count(ctx); err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}
	if stats.Users, err = s.profiles.Count(ctx); err != nil {
		return nil, fmt.Errorf("failed to count profiles: %w", err)
	}
	if stats.ActiveCarts, err = s.cartItems.CountActiveCarts(ctx); err != nil {
		return nil, fmt.Errorf("failed to count active carts: %w", err)
	}
	return &stats, nil
}

// AdminProducts は管理画面の商品一覧を返す。
func (s *Service) AdminProducts(ctx context.Context) ([]*model.Product, error) {
	products, err := s.products.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	if products == nil {
		products = []*model.Product{}
	}
	return products, nil
}

// AddProduct は商品を追加する。
// 在庫未指定は100、画像未指定はプレースホルダーとし、説明文はサニタイズして保存する。
func (s *Service) AddProduct(ctx context.Context, in ProductInput) (*model.Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, model.NewValidationAPIError("Product name is required.")
	}
	if in.Price < 0 {
		return nil, model.NewValidationAPIError("Price must not be negative.")
	}

	p := &model.Product{
		ID:          uuid.NewString(),
		Name:        name,
		Price:       in.Price,
		Category:    strings.TrimSpace(in.Category),
		Description: s.sanitizer.Sanitize(in.Description),
		Stock:       in.Stock,
		Image:       strings.TrimSpace(in.Image),
		Popular:     in.Popular,
		CreatedAt:   s.now(),
	}
	if p.Stock <= 0 {
		p.Stock = model.DefaultProductStock
	}
	if p.Image == "" {
		p.Image = model.DefaultProductImage
	}

	if err := s.products.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("product added",
		slog.String("product_id", p.ID),
		slog.String("name", p.Name),
	)
	return p, nil
}

// AddCategory はカテゴリを追加し、更新後のカテゴリ一覧を名前順で返す。
// 同名のカテゴリが既にある場合もエラーにしない。
func (s *Service) AddCategory(ctx context.Context, name string) ([]*model.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.NewValidationAPIError("Category name is required.")
	}

	created, err := s.categories.Create(ctx, &model.Category{ID: uuid.NewString(), Name: name})
	if err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	if !created {
		s.logger.Info("category already exists", slog.String("name", name))
	}

	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// AdminOrders は全ユーザーの注文を新しい順に返す。
func (s *Service) AdminOrders(ctx context.Context) ([]*model.Order, error) {
	orders, err := s.orders.ListAll(ctx, adminOrderLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	for _, o := range orders {
		fillUnknownProducts(o)
	}
	if orders == nil {
		orders = []*model.Order{}
	}
	return orders, nil
}

// UpdateOrderStatus は注文ステータスを更新する。
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID, rawStatus string) error {
	status, ok := model.ParseOrderStatus(rawStatus)
	if !ok {
		return model.NewInvalidOrderStatusError(rawStatus)
	}
	if !isUUID(orderID) {
		return model.NewOrderNotFoundError(orderID)
	}

	if err := s.orders.UpdateStatus(ctx, orderID, status); err != nil {
		var nf *model.NotFoundError
		if errors.As(err, &nf) {
			return model.NewOrderNotFoundError(orderID)
		}
		return fmt.Errorf("failed to update order status: %w", err)
	}

	s.logger.Info("order status updated",
		slog.String("order_id", orderID),
		slog.String("status", string(status)),
	)
	return nil
}

// LiveCarts はカートに商品を入れているユーザーの一覧を返す。
func (s *Service) LiveCarts(ctx context.Context) ([]model.ActiveCart, error) {
	carts, err := s.cartItems.ListActiveCarts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active carts: %w", err)
	}
	if carts == nil {
		carts = []model.ActiveCart{}
	}
	return carts, nil
}
