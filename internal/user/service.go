// Package user はユーザープロフィール管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/repository"
)

// 入力値の最大文字数
const (
	maxFullNameLength = 100
	maxPhoneLength    = 30
	maxAddressLength  = 500
)

// ContactInput はプロフィール画面で編集できる連絡先情報。
type ContactInput struct {
	FullName string
	Phone    string
	Address  string
}

// Service はプロフィール管理のサービス層。
type Service struct {
	profileRepo repository.ProfileRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(profileRepo repository.ProfileRepository) *Service {
	return &Service{
		profileRepo: profileRepo,
	}
}

// GetProfile はユーザーのプロフィールを取得する。
func (s *Service) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	profile, err := s.profileRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	if profile == nil {
		return nil, model.NewProfileNotFoundError()
	}
	return profile, nil
}

// UpdateContact は氏名・電話番号・住所を更新する。
// ロールやメールアドレスはこの経路では変更できない。
func (s *Service) UpdateContact(ctx context.Context, userID string, in ContactInput) (*model.Profile, error) {
	// 1. 入力値の正規化と検証
	in = ContactInput{
		FullName: strings.TrimSpace(in.FullName),
		Phone:    strings.TrimSpace(in.Phone),
		Address:  strings.TrimSpace(in.Address),
	}
	if err := validateContact(in); err != nil {
		return nil, err
	}

	// 2. 更新
	profile, err := s.profileRepo.UpdateContact(ctx, userID, in.FullName, in.Phone, in.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	if profile == nil {
		return nil, model.NewProfileNotFoundError()
	}

	slog.Info("profile updated",
		slog.String("user_id", userID),
	)

	return profile, nil
}

func validateContact(in ContactInput) error {
	switch {
	case utf8.RuneCountInString(in.FullName) > maxFullNameLength:
		return model.NewValidationAPIError(fmt.Sprintf("Full name must be at most %d characters.", maxFullNameLength))
	case utf8.RuneCountInString(in.Phone) > maxPhoneLength:
		return model.NewValidationAPIError(fmt.Sprintf("Phone must be at most %d characters.", maxPhoneLength))
	case utf8.RuneCountInString(in.Address) > maxAddressLength:
		return model.NewValidationAPIError(fmt.Sprintf("Address must be at most %d characters.", maxAddressLength))
	}
	return nil
}
