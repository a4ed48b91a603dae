package storefront

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/model"
)

func apiErrorCode(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// --- 商品一覧・詳細 ---

func TestShop_FiltersByCategory(t *testing.T) {
	svc, d := newTestService()
	var gotCategory string
	d.products.listFn = func(ctx context.Context, category string) ([]*model.Product, error) {
		gotCategory = category
		return []*model.Product{{ID: "p1", Name: "Apple", Category: category}}, nil
	}
	d.categories.listFn = func(ctx context.Context) ([]*model.Category, error) {
		return []*model.Category{{ID: "c1", Name: "Fruit"}}, nil
	}

	view, err := svc.Shop(context.Background(), "Fruit")
	if err != nil {
		t.Fatalf("Shop() error = %v", err)
	}
	if gotCategory != "Fruit" {
		t.Errorf("category = %q, want Fruit", gotCategory)
	}
	if len(view.Products) != 1 || len(view.Categories) != 1 {
		t.Errorf("view = %+v", view)
	}
}

func TestShop_EmptyListsAreNotNil(t *testing.T) {
	svc, _ := newTestService()

	view, err := svc.Shop(context.Background(), "")
	if err != nil {
		t.Fatalf("Shop() error = %v", err)
	}
	if view.Products == nil || view.Categories == nil {
		t.Error("empty lists must be non-nil for JSON rendering")
	}
}

const missingProductID = "7c9e6679-7425-40de-944b-e07fc1f90ae7"

func TestProduct_NotFound(t *testing.T) {
	tests := []struct {
		name         string
		id           string
		wantRepoCall bool
	}{
		{"存在しないUUID", missingProductID, true},
		{"UUIDでないIDはDBに問い合わせない", "not-a-uuid", false},
		{"空文字", "", false},
		{"URN形式は受け付けない", "urn:uuid:" + missingProductID, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, d := newTestService()
			called := false
			d.products.findByIDFn = func(ctx context.Context, id string) (*model.Product, error) {
				called = true
				return nil, nil
			}

			_, err := svc.Product(context.Background(), tt.id)
			if code := apiErrorCode(err); code != model.ErrCodeProductNotFound {
				t.Errorf("error code = %q, want %q", code, model.ErrCodeProductNotFound)
			}
			if called != tt.wantRepoCall {
				t.Errorf("FindByID called = %v, want %v", called, tt.wantRepoCall)
			}
		})
	}
}

// --- 注文確定 ---

type orderMetrics struct {
	metrics.Nop
	amounts []float64
}

func (m *orderMetrics) RecordOrderPlaced(amount float64) {
	m.amounts = append(m.amounts, amount)
}

var details = CustomerDetails{Name: "Taro", Phone: "090-0000-0000", Address: "Tokyo"}

func TestPlaceOrder_RequiresCustomerDetails(t *testing.T) {
	svc, d := newTestService()
	d.orders.createWithItemsFn = func(ctx context.Context, o *model.Order) error {
		t.Fatal("order must not be created")
		return nil
	}

	lines := []model.CartLine{{ProductID: "p1", Price: 50, Quantity: 1}}
	for _, in := range []CustomerDetails{
		{Name: " ", Phone: "1", Address: "a"},
		{Name: "n", Phone: "", Address: "a"},
		{Name: "n", Phone: "1", Address: "\t"},
	} {
		_, err := svc.PlaceOrder(context.Background(), "u1", in, lines)
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
			t.Fatalf("PlaceOrder(%+v) error = %v, want validation error", in, err)
		}
		if apiErr.Message != "Please fill in all customer details (Name, Phone, Address)." {
			t.Errorf("message = %q", apiErr.Message)
		}
	}
}

func TestPlaceOrder_RejectsEmptyCart(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.PlaceOrder(context.Background(), "u1", details, nil)
	if code := apiErrorCode(err); code != model.ErrCodeEmptyCart {
		t.Errorf("error code = %q, want %q", code, model.ErrCodeEmptyCart)
	}
}

func TestPlaceOrder_Success(t *testing.T) {
	m := &orderMetrics{}
	svc, d := newTestService(WithMetrics(m))

	var saved *model.Order
	d.orders.createWithItemsFn = func(ctx context.Context, o *model.Order) error {
		saved = o
		return nil
	}
	var mirrored []model.CartItem
	mirrorCalled := false
	d.cartItems.replaceForUserFn = func(ctx context.Context, userID string, items []model.CartItem) error {
		mirrorCalled = true
		mirrored = items
		return nil
	}

	lines := []model.CartLine{
		{ProductID: "p1", Name: "Widget", Price: 50, Quantity: 2},
		{ProductID: "p2", Name: "Gadget", Price: 19.99, Quantity: 1},
	}
	order, err := svc.PlaceOrder(context.Background(), "u1", CustomerDetails{Name: " Taro ", Phone: "1", Address: "Tokyo"}, lines)
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}

	if saved == nil || saved != order {
		t.Fatal("order was not passed to repository")
	}
	if order.Status != model.OrderStatusPending {
		t.Errorf("Status = %q, want pending", order.Status)
	}
	if order.PaymentMethod != model.PaymentMethodCOD {
		t.Errorf("PaymentMethod = %q, want cod", order.PaymentMethod)
	}
	if order.CustomerName != "Taro" {
		t.Errorf("CustomerName = %q, want trimmed", order.CustomerName)
	}
	if order.UserID != "u1" || !order.CreatedAt.Equal(fixedNow) {
		t.Errorf("order = %+v", order)
	}
	if len(order.Items) != 2 || order.Items[0].Quantity != 2 || order.Items[0].ID == "" {
		t.Errorf("items = %+v", order.Items)
	}
	if len(m.amounts) != 1 || m.amounts[0] != order.TotalAmount {
		t.Errorf("recorded amounts = %v", m.amounts)
	}
	if !mirrorCalled || len(mirrored) != 0 {
		t.Errorf("live cart should be cleared, got called=%v items=%v", mirrorCalled, mirrored)
	}
}

func TestPlaceOrder_UsesRepricedTotal(t *testing.T) {
	svc, d := newTestService()
	d.orders.createWithItemsFn = func(ctx context.Context, o *model.Order) error {
		// 保存時点の価格で再計算される
		o.Items[0].Price = 60
		o.TotalAmount = 60
		return nil
	}

	order, err := svc.PlaceOrder(context.Background(), "u1", details,
		[]model.CartLine{{ProductID: "p1", Price: 50, Quantity: 1}})
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}
	if order.TotalAmount != 60 {
		t.Errorf("TotalAmount = %v, want 60", order.TotalAmount)
	}
}

func TestPlaceOrder_MissingProduct(t *testing.T) {
	svc, d := newTestService()
	d.orders.createWithItemsFn = func(ctx context.Context, o *model.Order) error {
		return &model.NotFoundError{Resource: "product", ID: "gone"}
	}

	_, err := svc.PlaceOrder(context.Background(), "u1", details,
		[]model.CartLine{{ProductID: "gone", Price: 1, Quantity: 1}})
	if code := apiErrorCode(err); code != model.ErrCodeProductNotFound {
		t.Errorf("error code = %q, want %q", code, model.ErrCodeProductNotFound)
	}
}

func TestPlaceOrder_RepositoryFailure(t *testing.T) {
	svc, d := newTestService()
	d.orders.createWithItemsFn = func(ctx context.Context, o *model.Order) error {
		return errors.New("connection reset")
	}

	_, err := svc.PlaceOrder(context.Background(), "u1", details,
		[]model.CartLine{{ProductID: "p1", Price: 1, Quantity: 1}})
	if err == nil || apiErrorCode(err) != "" {
		t.Errorf("error = %v, want wrapped internal error", err)
	}
}

// --- 注文履歴 ---

func TestOrders_FallbackNameAndSteps(t *testing.T) {
	svc, d := newTestService()
	d.orders.listByUserIDFn = func(ctx context.Context, userID string) ([]*model.Order, error) {
		return []*model.Order{
			{ID: "o2", Status: model.OrderStatusShipped, Items: []model.OrderItem{{ProductID: "p1", ProductName: "Widget"}, {ProductID: "", ProductName: ""}}},
			{ID: "o1", Status: model.OrderStatusCancelled},
		}, nil
	}

	views, err := svc.Orders(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Orders() error = %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("len(views) = %d, want 2", len(views))
	}

	items := views[0].Order.Items
	if items[0].ProductName != "Widget" || items[1].ProductName != UnknownProductName {
		t.Errorf("item names = %q, %q", items[0].ProductName, items[1].ProductName)
	}

	steps := views[0].Steps
	if len(steps) != 4 {
		t.Fatalf("len(steps) = %d, want 4", len(steps))
	}
	wantDone := []bool{true, true, true, false}
	for i, s := range steps {
		if s.Done != wantDone[i] {
			t.Errorf("steps[%d].Done = %v, want %v", i, s.Done, wantDone[i])
		}
		if s.Current != (s.Status == model.OrderStatusShipped) {
			t.Errorf("steps[%d].Current = %v", i, s.Current)
		}
	}

	if views[1].Steps != nil {
		t.Errorf("cancelled order steps = %v, want none", views[1].Steps)
	}
}

// --- ライブカート ---

func TestSyncCart(t *testing.T) {
	svc, d := newTestService()
	var got []model.CartItem
	calls := 0
	d.cartItems.replaceForUserFn = func(ctx context.Context, userID string, items []model.CartItem) error {
		calls++
		got = items
		return errors.New("db down")
	}

	// 匿名ユーザーは保存しない
	svc.SyncCart(context.Background(), "", []model.CartLine{{ProductID: "p1", Quantity: 1}})
	if calls != 0 {
		t.Fatalf("anonymous cart should not be mirrored")
	}

	// 保存失敗はエラーにならない
	svc.SyncCart(context.Background(), "u1", []model.CartLine{{ProductID: "p1", Quantity: 3}})
	if calls != 1 || len(got) != 1 || got[0].Quantity != 3 || got[0].UserID != "u1" || !got[0].UpdatedAt.Equal(fixedNow) {
		t.Errorf("mirrored = %+v", got)
	}
}
