package session

import "github.com/hitoshi/storefront/internal/model"

// Phase は認証状態機械のフェーズ。
type Phase string

const (
	PhaseInitializing                Phase = "initializing"
	PhaseAuthenticatedPendingProfile Phase = "authenticated_pending_profile"
	PhaseAuthenticated               Phase = "authenticated"
	PhaseAnonymous                   Phase = "anonymous"
)

// State はManagerが公開する読み取り専用のスナップショット。
type State struct {
	Phase   Phase
	Loading bool
	Session *model.Session
	User    *model.User
	Profile *model.Profile
	// Err は直近の初期化エラー。無効なリフレッシュ資格情報はここに入らない。
	Err error
}

// Authenticated はユーザーが存在するかを返す。
func (s State) Authenticated() bool {
	return s.User != nil
}

// Resolving は初回ロード中、またはプロフィールの取得待ちでロールが未確定かを返す。
func (s State) Resolving() bool {
	return s.Loading || s.Phase == PhaseAuthenticatedPendingProfile
}

// Role は解決済みのロールを返す。未解決の場合は空文字。
func (s State) Role() model.Role {
	if s.Profile == nil {
		return ""
	}
	return s.Profile.Role
}

func (s State) clone() State {
	out := s
	if s.Session != nil {
		cp := *s.Session
		out.Session = &cp
	}
	if s.User != nil {
		cp := *s.User
		out.User = &cp
	}
	if s.Profile != nil {
		cp := *s.Profile
		out.Profile = &cp
	}
	return out
}
