package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/storefront/internal/logger"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/user"
	"github.com/hitoshi/storefront/internal/visitor"
)

// countingProfileStore はプロフィール取得の回数を数える。
type countingProfileStore struct {
	stubProfileStore
	calls atomic.Int32
}

func (s *countingProfileStore) FindByID(ctx context.Context, accessToken, id string) (*model.Profile, error) {
	s.calls.Add(1)
	return s.stubProfileStore.FindByID(ctx, accessToken, id)
}

func TestUserHandler_GetProfile(t *testing.T) {
	reg := newTestRegistry(t, nil)

	t.Run("ログイン中ユーザーのプロフィールを返す", func(t *testing.T) {
		v := signedInVisitor(t, reg, "shopper@example.com")
		var gotUserID string
		h := NewUserHandler(&mockUserService{
			getProfileFn: func(_ context.Context, userID string) (*model.Profile, error) {
				gotUserID = userID
				return &model.Profile{ID: userID, Email: "shopper@example.com", Role: model.RoleUser, FullName: "Taro"}, nil
			},
		})

		rec := httptest.NewRecorder()
		h.GetProfile(rec, newVisitorRequest(http.MethodGet, "/profile", nil, v))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if gotUserID != "u-shopper@example.com" {
			t.Errorf("userID = %q, want %q", gotUserID, "u-shopper@example.com")
		}
		resp := decodeBody[profileResponse](t, rec)
		if resp.FullName != "Taro" || resp.Role != string(model.RoleUser) {
			t.Errorf("profile = %+v, want Taro/user", resp)
		}
	})

	t.Run("プロフィールがなければ404", func(t *testing.T) {
		v := signedInVisitor(t, reg, "shopper@example.com")
		h := NewUserHandler(&mockUserService{
			getProfileFn: func(context.Context, string) (*model.Profile, error) {
				return nil, model.NewProfileNotFoundError()
			},
		})

		rec := httptest.NewRecorder()
		h.GetProfile(rec, newVisitorRequest(http.MethodGet, "/profile", nil, v))

		assertErrorCode(t, rec, http.StatusNotFound, model.ErrCodeProfileNotFound)
	})

	t.Run("未ログインは401", func(t *testing.T) {
		v := anonymousVisitor(t, reg)
		h := NewUserHandler(&mockUserService{})

		rec := httptest.NewRecorder()
		h.GetProfile(rec, newVisitorRequest(http.MethodGet, "/profile", nil, v))

		assertErrorCode(t, rec, http.StatusUnauthorized, model.ErrCodeUnauthorized)
	})
}

func TestUserHandler_UpdateProfile_RefetchesSessionProfile(t *testing.T) {
	profiles := &countingProfileStore{}
	reg := visitor.NewRegistry(&stubAuthenticator{}, profiles, visitor.WithLogger(logger.Discard()))
	t.Cleanup(reg.Close)
	v := signedInVisitor(t, reg, "shopper@example.com")
	before := profiles.calls.Load()

	var gotInput user.ContactInput
	h := NewUserHandler(&mockUserService{
		updateContactFn: func(_ context.Context, userID string, in user.ContactInput) (*model.Profile, error) {
			gotInput = in
			return &model.Profile{ID: userID, Role: model.RoleUser, FullName: in.FullName, Phone: in.Phone, Address: in.Address}, nil
		},
	})

	rec := httptest.NewRecorder()
	h.UpdateProfile(rec, newVisitorRequest(http.MethodPut, "/profile",
		updateProfileRequest{FullName: "Hanako", Phone: "080", Address: "Osaka"}, v))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body=%s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if gotInput.FullName != "Hanako" || gotInput.Address != "Osaka" {
		t.Errorf("ContactInput = %+v, want request values", gotInput)
	}
	resp := decodeBody[profileResponse](t, rec)
	if resp.FullName != "Hanako" {
		t.Errorf("full_name = %q, want %q", resp.FullName, "Hanako")
	}

	deadline := time.Now().Add(2 * time.Second)
	for profiles.calls.Load() == before {
		if time.Now().After(deadline) {
			t.Fatal("session profile was not refetched after the update")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if st := v.Session.State(); !st.Authenticated() || st.Profile == nil {
		t.Errorf("state after refetch = %+v, want authenticated with profile", st)
	}
}

func TestUserHandler_UpdateProfile_ValidationError(t *testing.T) {
	reg := newTestRegistry(t, nil)
	v := signedInVisitor(t, reg, "shopper@example.com")
	h := NewUserHandler(&mockUserService{
		updateContactFn: func(context.Context, string, user.ContactInput) (*model.Profile, error) {
			return nil, &model.ValidationError{Field: "full_name", Message: "full name is too long"}
		},
	})

	rec := httptest.NewRecorder()
	h.UpdateProfile(rec, newVisitorRequest(http.MethodPut, "/profile", updateProfileRequest{FullName: "x"}, v))

	assertErrorCode(t, rec, http.StatusBadRequest, model.ErrCodeValidation)
}
