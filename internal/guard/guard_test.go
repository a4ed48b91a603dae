package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/storefront/internal/logger"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/session"
)

func loadedUser(role model.Role) session.State {
	st := session.State{
		Phase: session.PhaseAuthenticated,
		User:  &model.User{ID: "u1", Email: "u1@example.com"},
	}
	if role != "" {
		st.Profile = &model.Profile{ID: "u1", Role: role}
	}
	return st
}

func TestDecide(t *testing.T) {
	admin := RequireRole(model.RoleAdmin)

	tests := []struct {
		name string
		st   session.State
		req  Requirement
		path string
		want Decision
	}{
		{
			name: "loading never renders",
			st:   session.State{Phase: session.PhaseInitializing, Loading: true},
			req:  admin,
			path: "/admin",
			want: Decision{Kind: KindLoading},
		},
		{
			name: "loading with user still loading",
			st:   session.State{Phase: session.PhaseAuthenticated, Loading: true, User: &model.User{ID: "u1"}},
			req:  RequireUser(),
			path: "/orders",
			want: Decision{Kind: KindLoading},
		},
		{
			name: "anonymous redirected to login with return url",
			st:   session.State{Phase: session.PhaseAnonymous},
			req:  admin,
			path: "/admin/products",
			want: Decision{Kind: KindRedirect, Location: "/login?returnUrl=%2Fadmin%2Fproducts"},
		},
		{
			name: "wrong role redirected home",
			st:   loadedUser(model.RoleUser),
			req:  admin,
			path: "/admin",
			want: Decision{Kind: KindRedirect, Location: "/"},
		},
		{
			name: "unresolved profile treated as non admin",
			st:   loadedUser(""),
			req:  admin,
			path: "/admin",
			want: Decision{Kind: KindRedirect, Location: "/"},
		},
		{
			name: "pending profile waits for role",
			st: session.State{
				Phase: session.PhaseAuthenticatedPendingProfile,
				User:  &model.User{ID: "u2"},
			},
			req:  admin,
			path: "/admin",
			want: Decision{Kind: KindLoading},
		},
		{
			name: "pending profile does not block user requirement",
			st: session.State{
				Phase: session.PhaseAuthenticatedPendingProfile,
				User:  &model.User{ID: "u2"},
			},
			req:  RequireUser(),
			path: "/orders",
			want: Decision{Kind: KindRender},
		},
		{
			name: "admin renders",
			st:   loadedUser(model.RoleAdmin),
			req:  admin,
			path: "/admin",
			want: Decision{Kind: KindRender},
		},
		{
			name: "user requirement renders for any role",
			st:   loadedUser(model.RoleUser),
			req:  RequireUser(),
			path: "/checkout",
			want: Decision{Kind: KindRender},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.st, tt.req, tt.path)
			if got != tt.want {
				t.Errorf("Decide() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRequirement_String(t *testing.T) {
	if got := RequireUser().String(); got != "user" {
		t.Errorf("RequireUser().String() = %q, want %q", got, "user")
	}
	if got := RequireRole(model.RoleAdmin).String(); got != "role:admin" {
		t.Errorf("RequireRole(admin).String() = %q, want %q", got, "role:admin")
	}
}

// --- Watch ---

type fakeSource struct {
	state   session.State
	updates chan session.State
}

func (f *fakeSource) State() session.State { return f.state }

func (f *fakeSource) Subscribe() (<-chan session.State, func()) {
	return f.updates, func() {}
}

func recv(t *testing.T, ch <-chan Decision) Decision {
	t.Helper()
	select {
	case d, ok := <-ch:
		if !ok {
			t.Fatal("decision channel closed unexpectedly")
		}
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for decision")
	}
	return Decision{}
}

func TestWatch_ReevaluatesOnChange(t *testing.T) {
	src := &fakeSource{
		state:   session.State{Phase: session.PhaseInitializing, Loading: true},
		updates: make(chan session.State, 4),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	decisions := Watch(ctx, src, RequireRole(model.RoleAdmin), "/admin")

	if d := recv(t, decisions); d.Kind != KindLoading {
		t.Fatalf("first decision = %+v, want loading", d)
	}

	src.updates <- loadedUser(model.RoleAdmin)
	if d := recv(t, decisions); d.Kind != KindRender {
		t.Fatalf("second decision = %+v, want render", d)
	}

	// 同じ判定になる変化は送出しない
	src.updates <- loadedUser(model.RoleAdmin)
	// ロールが剥奪されたらトップへ
	src.updates <- loadedUser(model.RoleUser)
	d := recv(t, decisions)
	if d.Kind != KindRedirect || d.Location != "/" {
		t.Fatalf("third decision = %+v, want redirect to /", d)
	}
}

func TestWatch_ClosesWhenSourceCloses(t *testing.T) {
	src := &fakeSource{
		state:   session.State{Phase: session.PhaseAnonymous},
		updates: make(chan session.State),
	}

	decisions := Watch(context.Background(), src, RequireUser(), "/orders")
	recv(t, decisions)
	close(src.updates)

	select {
	case _, ok := <-decisions:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
}

// --- session.Managerとの結合 ---

type stubGateway struct {
	session    *model.Session
	profileErr error
	events     chan model.AuthEvent
}

func (g *stubGateway) GetCurrentSession(context.Context) (*model.Session, error) {
	return g.session, nil
}

func (g *stubGateway) OnAuthStateChange() (<-chan model.AuthEvent, func()) {
	return g.events, func() {}
}

func (g *stubGateway) SignOut(context.Context) error { return nil }

func (g *stubGateway) GetProfileByID(_ context.Context, id string) (*model.Profile, error) {
	if g.profileErr != nil {
		return nil, g.profileErr
	}
	return &model.Profile{ID: id, Role: model.RoleAdmin}, nil
}

func TestWatch_ProfileFailureRedirectsAdminHome(t *testing.T) {
	gw := &stubGateway{
		session: &model.Session{
			AccessToken: "a", RefreshToken: "r",
			ExpiresAt: time.Now().Add(time.Hour),
			User:      model.User{ID: "u1", Email: "u1@example.com"},
		},
		profileErr: &model.NetworkError{Op: "get_profile", Err: errors.New("boom")},
		events:     make(chan model.AuthEvent),
	}
	m := session.NewManager(gw, session.WithLogger(logger.Discard()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	decisions := Watch(ctx, m, RequireRole(model.RoleAdmin), "/admin")
	m.Start(ctx)
	defer m.Stop()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case d, ok := <-decisions:
			if !ok {
				t.Fatal("decision channel closed")
			}
			if d.Kind == KindRender {
				t.Fatal("must not render admin page without a resolved admin profile")
			}
			if d.Kind == KindRedirect {
				if d.Location != "/" {
					t.Errorf("Location = %q, want /", d.Location)
				}
				st := m.State()
				if !st.Authenticated() || st.Profile != nil {
					t.Errorf("state = %+v, want authenticated without profile", st)
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for redirect")
		}
	}
}
