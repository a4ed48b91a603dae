package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/storefront/internal/logger"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/session"
	"github.com/hitoshi/storefront/internal/storefront"
	"github.com/hitoshi/storefront/internal/user"
	"github.com/hitoshi/storefront/internal/visitor"
)

// --- 認証基盤のスタブ ---

// stubAuthenticator はパスワード"secret"のみを受け付ける認証基盤のスタブ。
type stubAuthenticator struct {
	mu       sync.Mutex
	signOuts int
	failNet  bool
}

func (s *stubAuthenticator) SignUp(ctx context.Context, email, password, _ string) (*model.Session, error) {
	if email == "taken@example.com" {
		return nil, model.ErrEmailTaken
	}
	return s.SignIn(ctx, email, password)
}

func (s *stubAuthenticator) SignIn(_ context.Context, email, password string) (*model.Session, error) {
	s.mu.Lock()
	failNet := s.failNet
	s.mu.Unlock()
	if failNet {
		return nil, context.DeadlineExceeded
	}
	if password != "secret" {
		return nil, model.ErrInvalidLogin
	}
	return &model.Session{
		AccessToken:  "access-" + email,
		RefreshToken: "refresh-" + email,
		User:         model.User{ID: "u-" + email, Email: email},
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil
}

func (s *stubAuthenticator) Refresh(_ context.Context, _ string) (*model.Session, error) {
	return nil, &model.InvalidCredentialError{Reason: "unknown"}
}

func (s *stubAuthenticator) SignOut(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signOuts++
	return nil
}

// stubProfileStore は"admin@example.com"のみ管理者のプロフィールを返す。
type stubProfileStore struct{}

func (stubProfileStore) FindByID(_ context.Context, _, id string) (*model.Profile, error) {
	role := model.RoleUser
	if id == "u-admin@example.com" {
		role = model.RoleAdmin
	}
	return &model.Profile{
		ID:       id,
		Role:     role,
		FullName: "Taro Yamada",
		Phone:    "090-0000-0000",
		Address:  "Tokyo",
	}, nil
}

func newTestRegistry(t *testing.T, auth *stubAuthenticator) *visitor.Registry {
	t.Helper()
	if auth == nil {
		auth = &stubAuthenticator{}
	}
	r := visitor.NewRegistry(auth, stubProfileStore{}, visitor.WithLogger(logger.Discard()))
	t.Cleanup(r.Close)
	return r
}

func waitState(t *testing.T, v *visitor.Visitor, pred func(session.State) bool) session.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := v.Session.WaitFor(ctx, pred)
	if err != nil {
		t.Fatalf("WaitFor() error = %v", err)
	}
	return st
}

func loaded(s session.State) bool { return !s.Loading }

func settled(s session.State) bool { return s.Authenticated() && !s.Resolving() }

// anonymousVisitor はロードが終わった未ログインの訪問者を返す。
func anonymousVisitor(t *testing.T, r *visitor.Registry) *visitor.Visitor {
	t.Helper()
	v := r.Create("")
	waitState(t, v, loaded)
	return v
}

// signedInVisitor はサインイン済みでプロフィールまで解決した訪問者を返す。
func signedInVisitor(t *testing.T, r *visitor.Registry, email string) *visitor.Visitor {
	t.Helper()
	v := anonymousVisitor(t, r)
	if _, err := v.Gateway.SignIn(context.Background(), email, "secret"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	waitState(t, v, settled)
	return v
}

// newVisitorRequest は訪問者をコンテキストに載せたリクエストを生成する。
func newVisitorRequest(method, target string, body any, v *visitor.Visitor) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if v != nil {
		req = req.WithContext(middleware.ContextWithVisitor(req.Context(), v))
	}
	return req
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response body: %v (body=%q)", err, rec.Body.String())
	}
	return out
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int, wantCode string) {
	t.Helper()
	if rec.Code != wantStatus {
		t.Fatalf("status = %d, want %d (body=%s)", rec.Code, wantStatus, rec.Body.String())
	}
	resp := decodeBody[middleware.ErrorResponseBody](t, rec)
	if resp.Code != wantCode {
		t.Errorf("code = %q, want %q", resp.Code, wantCode)
	}
}

// --- サービスのモック ---

type mockCatalogService struct {
	mu         sync.Mutex
	shopFn     func(ctx context.Context, category string) (*storefront.ShopView, error)
	productFn  func(ctx context.Context, id string) (*model.Product, error)
	syncedFor  []string
	syncedLast []model.CartLine
}

func (m *mockCatalogService) Shop(ctx context.Context, category string) (*storefront.ShopView, error) {
	if m.shopFn != nil {
		return m.shopFn(ctx, category)
	}
	return &storefront.ShopView{Category: category}, nil
}

func (m *mockCatalogService) Product(ctx context.Context, id string) (*model.Product, error) {
	if m.productFn != nil {
		return m.productFn(ctx, id)
	}
	p, ok := testProducts[id]
	if !ok {
		return nil, model.NewProductNotFoundError(id)
	}
	cp := p
	return &cp, nil
}

func (m *mockCatalogService) SyncCart(_ context.Context, userID string, lines []model.CartLine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncedFor = append(m.syncedFor, userID)
	m.syncedLast = lines
}

func (m *mockCatalogService) syncCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.syncedFor)
}

var testProducts = map[string]model.Product{
	"mug":    {ID: "mug", Name: "Ceramic Mug", Price: 12.5, Category: "Mugs", Stock: 10},
	"poster": {ID: "poster", Name: "Poster", Price: 20, Category: "Art", Stock: 3},
}

type mockOrderService struct {
	placeOrderFn func(ctx context.Context, userID string, details storefront.CustomerDetails, lines []model.CartLine) (*model.Order, error)
	ordersFn     func(ctx context.Context, userID string) ([]storefront.OrderView, error)
}

func (m *mockOrderService) PlaceOrder(ctx context.Context, userID string, details storefront.CustomerDetails, lines []model.CartLine) (*model.Order, error) {
	if m.placeOrderFn != nil {
		return m.placeOrderFn(ctx, userID, details, lines)
	}
	return &model.Order{ID: "order-1", UserID: userID}, nil
}

func (m *mockOrderService) Orders(ctx context.Context, userID string) ([]storefront.OrderView, error) {
	if m.ordersFn != nil {
		return m.ordersFn(ctx, userID)
	}
	return nil, nil
}

type mockUserService struct {
	getProfileFn    func(ctx context.Context, userID string) (*model.Profile, error)
	updateContactFn func(ctx context.Context, userID string, in user.ContactInput) (*model.Profile, error)
}

func (m *mockUserService) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, userID)
	}
	return &model.Profile{ID: userID, Role: model.RoleUser}, nil
}

func (m *mockUserService) UpdateContact(ctx context.Context, userID string, in user.ContactInput) (*model.Profile, error) {
	if m.updateContactFn != nil {
		return m.updateContactFn(ctx, userID, in)
	}
	return &model.Profile{ID: userID, Role: model.RoleUser, FullName: in.FullName, Phone: in.Phone, Address: in.Address}, nil
}

type mockAdminService struct {
	dashboardFn         func(ctx context.Context) (*model.DashboardStats, error)
	adminProductsFn     func(ctx context.Context) ([]*model.Product, error)
	addProductFn        func(ctx context.Context, in storefront.ProductInput) (*model.Product, error)
	addCategoryFn       func(ctx context.Context, name string) ([]*model.Category, error)
	adminOrdersFn       func(ctx context.Context) ([]*model.Order, error)
	updateOrderStatusFn func(ctx context.Context, orderID, rawStatus string) error
	liveCartsFn         func(ctx context.Context) ([]model.ActiveCart, error)
}

func (m *mockAdminService) Dashboard(ctx context.Context) (*model.DashboardStats, error) {
	if m.dashboardFn != nil {
		return m.dashboardFn(ctx)
	}
	return &model.DashboardStats{}, nil
}

func (m *mockAdminService) AdminProducts(ctx context.Context) ([]*model.Product, error) {
	if m.adminProductsFn != nil {
		return m.adminProductsFn(ctx)
	}
	return nil, nil
}

func (m *mockAdminService) AddProduct(ctx context.Context, in storefront.ProductInput) (*model.Product, error) {
	if m.addProductFn != nil {
		return m.addProductFn(ctx, in)
	}
	return &model.Product{ID: "p-new", Name: in.Name, Price: in.Price, Category: in.Category}, nil
}

func (m *mockAdminService) AddCategory(ctx context.Context, name string) ([]*model.Category, error) {
	if m.addCategoryFn != nil {
		return m.addCategoryFn(ctx, name)
	}
	return []*model.Category{{ID: "c-1", Name: name}}, nil
}

func (m *mockAdminService) AdminOrders(ctx context.Context) ([]*model.Order, error) {
	if m.adminOrdersFn != nil {
		return m.adminOrdersFn(ctx)
	}
	return nil, nil
}

func (m *mockAdminService) UpdateOrderStatus(ctx context.Context, orderID, rawStatus string) error {
	if m.updateOrderStatusFn != nil {
		return m.updateOrderStatusFn(ctx, orderID, rawStatus)
	}
	return nil
}

func (m *mockAdminService) LiveCarts(ctx context.Context) ([]model.ActiveCart, error) {
	if m.liveCartsFn != nil {
		return m.liveCartsFn(ctx)
	}
	return nil, nil
}
