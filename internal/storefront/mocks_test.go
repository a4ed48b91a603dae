package storefront

import (
	"context"
	"strings"
	"time"

	"github.com/hitoshi/storefront/internal/logger"
	"github.com/hitoshi/storefront/internal/model"
)

// --- モック定義 ---

type mockProductRepo struct {
	listFn      func(ctx context.Context, category string) ([]*model.Product, error)
	findByIDFn  func(ctx context.Context, id string) (*model.Product, error)
	findByIDsFn func(ctx context.Context, ids []string) (map[string]*model.Product, error)
	createFn    func(ctx context.Context, p *model.Product) error
	countFn     func(ctx context.Context) (int, error)
}

func (m *mockProductRepo) List(ctx context.Context, category string) ([]*model.Product, error) {
	if m.listFn != nil {
		return m.listFn(ctx, category)
	}
	return nil, nil
}

func (m *mockProductRepo) FindByID(ctx context.Context, id string) (*model.Product, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockProductRepo) FindByIDs(ctx context.Context, ids []string) (map[string]*model.Product, error) {
	if m.findByIDsFn != nil {
		return m.findByIDsFn(ctx, ids)
	}
	return map[string]*model.Product{}, nil
}

func (m *mockProductRepo) Create(ctx context.Context, p *model.Product) error {
	if m.createFn != nil {
		return m.createFn(ctx, p)
	}
	return nil
}

func (m *mockProductRepo) Count(ctx context.Context) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx)
	}
	return 0, nil
}

type mockCategoryRepo struct {
	listFn   func(ctx context.Context) ([]*model.Category, error)
	createFn func(ctx context.Context, c *model.Category) (bool, error)
}

func (m *mockCategoryRepo) List(ctx context.Context) ([]*model.Category, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockCategoryRepo) Create(ctx context.Context, c *model.Category) (bool, error) {
	if m.createFn != nil {
		return m.createFn(ctx, c)
	}
	return true, nil
}

type mockOrderRepo struct {
	createWithItemsFn func(ctx context.Context, o *model.Order) error
	listByUserIDFn    func(ctx context.Context, userID string) ([]*model.Order, error)
	listAllFn         func(ctx context.Context, limit int) ([]*model.Order, error)
	updateStatusFn    func(ctx context.Context, id string, status model.OrderStatus) error
	countFn           func(ctx context.Context) (int, error)
}

func (m *mockOrderRepo) CreateWithItems(ctx context.Context, o *model.Order) error {
	if m.createWithItemsFn != nil {
		return m.createWithItemsFn(ctx, o)
	}
	return nil
}

func (m *mockOrderRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Order, error) {
	if m.listByUserIDFn != nil {
		return m.listByUserIDFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockOrderRepo) ListAll(ctx context.Context, limit int) ([]*model.Order, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx, limit)
	}
	return nil, nil
}

func (m *mockOrderRepo) UpdateStatus(ctx context.Context, id string, status model.OrderStatus) error {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, status)
	}
	return nil
}

func (m *mockOrderRepo) Count(ctx context.Context) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx)
	}
	return 0, nil
}

type mockProfileRepo struct {
	countFn func(ctx context.Context) (int, error)
}

func (m *mockProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	return nil, nil
}

func (m *mockProfileRepo) UpdateContact(ctx context.Context, id, fullName, phone, address string) (*model.Profile, error) {
	return nil, nil
}

func (m *mockProfileRepo) Count(ctx context.Context) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx)
	}
	return 0, nil
}

type mockCartItemRepo struct {
	replaceForUserFn   func(ctx context.Context, userID string, items []model.CartItem) error
	listActiveCartsFn  func(ctx context.Context) ([]model.ActiveCart, error)
	countActiveCartsFn func(ctx context.Context) (int, error)
}

func (m *mockCartItemRepo) ReplaceForUser(ctx context.Context, userID string, items []model.CartItem) error {
	if m.replaceForUserFn != nil {
		return m.replaceForUserFn(ctx, userID, items)
	}
	return nil
}

func (m *mockCartItemRepo) ListActiveCarts(ctx context.Context) ([]model.ActiveCart, error) {
	if m.listActiveCartsFn != nil {
		return m.listActiveCartsFn(ctx)
	}
	return nil, nil
}

func (m *mockCartItemRepo) CountActiveCarts(ctx context.Context) (int, error) {
	if m.countActiveCartsFn != nil {
		return m.countActiveCartsFn(ctx)
	}
	return 0, nil
}

// stripTags はテスト用の単純なサニタイザー。
type stripTags struct{}

func (stripTags) Sanitize(s string) string {
	return strings.NewReplacer("<script>", "", "</script>", "").Replace(s)
}

// --- ヘルパー ---

type testDeps struct {
	products   *mockProductRepo
	categories *mockCategoryRepo
	orders     *mockOrderRepo
	profiles   *mockProfileRepo
	cartItems  *mockCartItemRepo
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(opts ...Option) (*Service, *testDeps) {
	d := &testDeps{
		products:   &mockProductRepo{},
		categories: &mockCategoryRepo{},
		orders:     &mockOrderRepo{},
		profiles:   &mockProfileRepo{},
		cartItems:  &mockCartItemRepo{},
	}
	opts = append([]Option{
		WithLogger(logger.Discard()),
		WithClock(func() time.Time { return fixedNow }),
	}, opts...)
	svc := NewService(Repositories{
		Products:   d.products,
		Categories: d.categories,
		Orders:     d.orders,
		Profiles:   d.profiles,
		CartItems:  d.cartItems,
	}, stripTags{}, opts...)
	return svc, d
}
