package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/repository"
)

// ErrProfileAccessDenied はアクセストークンが無効、または本人以外のプロフィールを要求したことを示す。
var ErrProfileAccessDenied = errors.New("profile access denied")

// ProfileReader はアクセストークンで呼び出し元を認可してプロフィールを返す。
// 本人のプロフィールのみ読み取れる。
type ProfileReader struct {
	service  *Service
	profiles repository.ProfileRepository
}

// NewProfileReader はProfileReaderを生成する。
func NewProfileReader(service *Service, profiles repository.ProfileRepository) *ProfileReader {
	return &ProfileReader{service: service, profiles: profiles}
}

// FindByID はプロフィールを取得する。見つからない場合はnilを返す。
func (r *ProfileReader) FindByID(ctx context.Context, accessToken, id string) (*model.Profile, error) {
	claims, err := r.service.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileAccessDenied, err)
	}
	if claims.Subject != id {
		return nil, ErrProfileAccessDenied
	}

	profile, err := r.profiles.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	return profile, nil
}
