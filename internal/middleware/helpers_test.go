package middleware

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/storefront/internal/logger"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/session"
	"github.com/hitoshi/storefront/internal/visitor"
)

// --- モック定義 ---

// stubAuthenticator はリフレッシュトークンごとに応答を切り替えられる認証基盤のスタブ。
type stubAuthenticator struct {
	mu         sync.Mutex
	expiresIn  time.Duration
	refreshFn  func(refreshToken string) (*model.Session, error)
	signOuts   []string
	refreshLog []string
}

func (s *stubAuthenticator) SignUp(ctx context.Context, email, password, _ string) (*model.Session, error) {
	return s.SignIn(ctx, email, password)
}

func (s *stubAuthenticator) SignIn(_ context.Context, email, _ string) (*model.Session, error) {
	expiresIn := s.expiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}
	return &model.Session{
		AccessToken:  "access-1",
		RefreshToken: "r1",
		User:         model.User{ID: "u-" + email, Email: email},
		ExpiresAt:    time.Now().Add(expiresIn),
	}, nil
}

func (s *stubAuthenticator) Refresh(_ context.Context, refreshToken string) (*model.Session, error) {
	s.mu.Lock()
	s.refreshLog = append(s.refreshLog, refreshToken)
	fn := s.refreshFn
	s.mu.Unlock()
	if fn != nil {
		return fn(refreshToken)
	}
	return nil, &model.InvalidCredentialError{Reason: "unknown"}
}

func (s *stubAuthenticator) SignOut(_ context.Context, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signOuts = append(s.signOuts, refreshToken)
	return nil
}

func (s *stubAuthenticator) signOutCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.signOuts)
}

type stubProfileStore struct{}

func (stubProfileStore) FindByID(_ context.Context, _, id string) (*model.Profile, error) {
	return &model.Profile{ID: id, Role: model.RoleUser}, nil
}

// refreshedSession はリフレッシュ成功時に返すセッションを生成する。
func refreshedSession(refreshToken string) *model.Session {
	return &model.Session{
		AccessToken:  "access-2",
		RefreshToken: refreshToken,
		User:         model.User{ID: "u-restored", Email: "restored@example.com"},
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func newTestRegistry(t *testing.T, auth *stubAuthenticator) *visitor.Registry {
	t.Helper()
	r := visitor.NewRegistry(auth, stubProfileStore{}, visitor.WithLogger(logger.Discard()))
	t.Cleanup(r.Close)
	return r
}

// waitState はpredが満たされるまで訪問者のセッション状態を待つ。
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

func authenticated(s session.State) bool { return s.Phase == session.PhaseAuthenticated }

// signedInVisitor はサインイン済みでプロフィールまで解決した訪問者を返す。
func signedInVisitor(t *testing.T, r *visitor.Registry, email string) *visitor.Visitor {
	t.Helper()
	v := r.Create("")
	waitState(t, v, loaded)
	if _, err := v.Gateway.SignIn(context.Background(), email, "secret"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	waitState(t, v, authenticated)
	return v
}
