package storefront

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/storefront/internal/model"
)

// ShopView は商品一覧画面の表示内容。
type ShopView struct {
	Products   []*model.Product
	Categories []*model.Category
	Category   string
}

// Shop は商品一覧とカテゴリ一覧を返す。categoryが空でなければ絞り込む。
func (s *Service) Shop(ctx context.Context, category string) (*ShopView, error) {
	products, err := s.products.List(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	if products == nil {
		products = []*model.Product{}
	}
	if categories == nil {
		categories = []*model.Category{}
	}
	return &ShopView{Products: products, Categories: categories, Category: category}, nil
}

// Product は商品詳細を返す。存在しない場合はPRODUCT_NOT_FOUNDのAPIErrorを返す。
func (s *Service) Product(ctx context.Context, id string) (*model.Product, error) {
	if !isUUID(id) {
		return nil, model.NewProductNotFoundError(id)
	}
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find product: %w", err)
	}
	if product == nil {
		return nil, model.NewProductNotFoundError(id)
	}
	return product, nil
}

// SyncCart はログイン中ユーザーのカートを管理画面のライブカート用に保存する。
// 失敗してもカート操作自体は成功させるため、エラーはログに記録するだけにする。
func (s *Service) SyncCart(ctx context.Context, userID string, lines []model.CartLine) {
	if userID == "" {
		return
	}
	now := s.now()
	items := make([]model.CartItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, model.CartItem{
			UserID:    userID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UpdatedAt: now,
		})
	}
	if err := s.cartItems.ReplaceForUser(ctx, userID, items); err != nil {
		s.logger.Warn("failed to mirror cart",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}
