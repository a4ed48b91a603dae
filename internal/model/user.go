// Package model はドメインモデルを定義する。
package model

import "time"

// Role はプロフィールに付与される権限ロール。
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid はロールが定義済みの値かどうかを返す。
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User はセッションから導出される認証済みユーザーを表す。
type User struct {
	ID    string
	Email string
}

// Account はゲートウェイの認証基盤が保持するユーザーレコード。
// パスワードハッシュを含むため、コア層には渡さない。
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Profile はアプリケーション側のユーザー情報。IDはUser.IDと一致する。
type Profile struct {
	ID        string
	Email     string
	Role      Role
	FullName  string
	Phone     string
	Address   string
	AvatarURL string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAdmin はプロフィールが管理者ロールを持つかを返す。
// nilのプロフィール（未解決）は管理者として扱わない。
func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// Session はゲートウェイが発行する認証情報の束。
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         User
}

// Expired は指定時刻の時点でアクセストークンが期限切れかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// RefreshToken はリフレッシュトークンの永続化レコード。
// トークン本体は保存せず、SHA-256ハッシュのみを保持する。
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// AuthEventKind は認証状態変化イベントの種別。
type AuthEventKind string

const (
	AuthEventInitialSession AuthEventKind = "INITIAL_SESSION"
	AuthEventSignedIn       AuthEventKind = "SIGNED_IN"
	AuthEventSignedOut      AuthEventKind = "SIGNED_OUT"
	AuthEventTokenRefreshed AuthEventKind = "TOKEN_REFRESHED"
	AuthEventUserUpdated    AuthEventKind = "USER_UPDATED"
)

// AuthEvent はゲートウェイから通知される認証状態変化。
// Sessionがnilの場合はサインアウト状態を表す。
type AuthEvent struct {
	Kind    AuthEventKind
	Session *Session
}
