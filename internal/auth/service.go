// Package auth はゲートウェイの認証基盤（パスワード認証、アクセストークン、リフレッシュトークン）を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/repository"
)

// MinPasswordLength はサインアップ時に要求するパスワードの最小長。
const MinPasswordLength = 6

// ErrInvalidAccessToken はアクセストークンの検証に失敗したことを示す。
var ErrInvalidAccessToken = errors.New("invalid access token")

// Claims はアクセストークンのクレーム。SubjectがユーザーID。
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	JWTSecret       []byte
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Issuer          string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	accounts repository.AccountRepository
	tokens   repository.RefreshTokenRepository
	config   ServiceConfig
	now      func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	accounts repository.AccountRepository,
	tokens repository.RefreshTokenRepository,
	config ServiceConfig,
) *Service {
	if config.Issuer == "" {
		config.Issuer = "storefront"
	}
	return &Service{
		accounts: accounts,
		tokens:   tokens,
		config:   config,
		now:      time.Now,
	}
}

// SignUp はアカウントとrole=userのプロフィールを作成し、セッションを発行する。
func (s *Service) SignUp(ctx context.Context, email, password, fullName string) (*model.Session, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, &model.ValidationError{Field: "email", Message: "a valid email address is required"}
	}
	if len(password) < MinPasswordLength {
		return nil, &model.ValidationError{
			Field:   "password",
			Message: fmt.Sprintf("password must be at least %d characters", MinPasswordLength),
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	account := &model.Account{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
	}
	profile := &model.Profile{
		ID:        account.ID,
		Email:     email,
		Role:      model.RoleUser,
		FullName:  strings.TrimSpace(fullName),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.accounts.CreateWithProfile(ctx, account, profile); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	slog.Info("account created", slog.String("user_id", account.ID))

	return s.issueSession(ctx, account)
}

// SignIn はメールアドレスとパスワードを検証し、セッションを発行する。
func (s *Service) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	account, err := s.accounts.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, model.ErrInvalidLogin
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, model.ErrInvalidLogin
	}

	return s.issueSession(ctx, account)
}

// Refresh はリフレッシュトークンをローテーションし、新しいセッションを発行する。
// トークンが無効・期限切れ・失効済みの場合は*model.InvalidCredentialErrorを返す。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*model.Session, error) {
	if refreshToken == "" {
		return nil, &model.InvalidCredentialError{Reason: "refresh token is empty"}
	}

	now := s.now()
	current, err := s.tokens.FindActiveByHash(ctx, hashToken(refreshToken), now)
	if err != nil {
		return nil, fmt.Errorf("failed to find refresh token: %w", err)
	}
	if current == nil {
		return nil, &model.InvalidCredentialError{Reason: "refresh token not found, expired or revoked"}
	}

	account, err := s.accounts.FindByID(ctx, current.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, &model.InvalidCredentialError{Reason: "account no longer exists"}
	}

	raw, next, err := s.newRefreshToken(account.ID, now)
	if err != nil {
		return nil, err
	}

	rotated, err := s.tokens.Rotate(ctx, current.ID, next, now)
	if err != nil {
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	if !rotated {
		return nil, &model.InvalidCredentialError{Reason: "refresh token already used"}
	}

	return s.buildSession(account, raw, now)
}

// SignOut はリフレッシュトークンの持ち主の全トークンを失効させる。
// 既に無効なトークンの場合は何もしない。
func (s *Service) SignOut(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	now := s.now()
	current, err := s.tokens.FindActiveByHash(ctx, hashToken(refreshToken), now)
	if err != nil {
		return fmt.Errorf("failed to find refresh token: %w", err)
	}
	if current == nil {
		return nil
	}

	if err := s.tokens.RevokeAllByUserID(ctx, current.UserID, now); err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}

	slog.Info("user signed out", slog.String("user_id", current.UserID))
	return nil
}

// ValidateAccessToken はアクセストークンの署名と有効期限を検証する。
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return s.config.JWTSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccessToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidAccessToken
	}
	return claims, nil
}

// DeleteExpiredTokens はretentionより前に期限切れまたは失効したトークンを削除する。
func (s *Service) DeleteExpiredTokens(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.tokens.DeleteExpired(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	return n, nil
}

// issueSession は新しいリフレッシュトークンを保存し、セッションを組み立てる。
func (s *Service) issueSession(ctx context.Context, account *model.Account) (*model.Session, error) {
	now := s.now()
	raw, token, err := s.newRefreshToken(account.ID, now)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to save refresh token: %w", err)
	}
	return s.buildSession(account, raw, now)
}

func (s *Service) buildSession(account *model.Account, refreshToken string, now time.Time) (*model.Session, error) {
	expiresAt := now.Add(s.config.AccessTokenTTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   account.ID,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: account.Email,
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.config.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	return &model.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		User:         model.User{ID: account.ID, Email: account.Email},
	}, nil
}

// newRefreshToken は不透明なリフレッシュトークンと、そのハッシュを持つ永続化レコードを生成する。
func (s *Service) newRefreshToken(userID string, now time.Time) (string, *model.RefreshToken, error) {
	raw, err := generateToken()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return raw, &model.RefreshToken{
		ID:        uuid.New().String(),
		UserID:    userID,
		TokenHash: hashToken(raw),
		ExpiresAt: now.Add(s.config.RefreshTokenTTL),
		CreatedAt: now,
	}, nil
}

// generateToken は暗号的に安全なトークン文字列を生成する。
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
