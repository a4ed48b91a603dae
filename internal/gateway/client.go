// Package gateway はセッション管理が利用するリモートデータゲートウェイのクライアントを提供する。
// 訪問者ごとに1つのClientがトークンを保持し、認証状態の変化をイベントとして配信する。
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/model"
)

// Authenticator はゲートウェイの認証基盤のインターフェース。
type Authenticator interface {
	SignUp(ctx context.Context, email, password, fullName string) (*model.Session, error)
	SignIn(ctx context.Context, email, password string) (*model.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*model.Session, error)
	SignOut(ctx context.Context, refreshToken string) error
}

// ProfileStore はプロフィール取得のインターフェース。
// accessTokenで呼び出し元を認可し、本人以外のプロフィールは返さない。
type ProfileStore interface {
	FindByID(ctx context.Context, accessToken, id string) (*model.Profile, error)
}

// Option はClientの設定を変更する。
type Option func(*Client)

// WithRefreshSkew はアクセストークン期限の何秒前からリフレッシュするかを設定する。
func WithRefreshSkew(d time.Duration) Option {
	return func(c *Client) { c.skew = d }
}

// WithLogger はロガーを設定する。
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics はメトリクスコレクターを設定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(c *Client) { c.metrics = m }
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithSession は保存済みのセッションで初期化する。
func WithSession(s *model.Session) Option {
	return func(c *Client) { c.session = s }
}

// Client は1訪問者分のゲートウェイクライアント。
type Client struct {
	auth     Authenticator
	profiles ProfileStore
	skew     time.Duration
	now      func() time.Time
	logger   *slog.Logger
	metrics  metrics.MetricsCollector

	mu      sync.Mutex
	session *model.Session

	// refreshMu は同一リフレッシュトークンでの並行リフレッシュを防ぐ。
	refreshMu sync.Mutex

	events *broadcaster
}

// NewClient はClientを生成する。
func NewClient(auth Authenticator, profiles ProfileStore, opts ...Option) *Client {
	c := &Client{
		auth:     auth,
		profiles: profiles,
		skew:     time.Minute,
		now:      time.Now,
		logger:   slog.Default(),
		metrics:  metrics.Nop{},
		events:   newBroadcaster(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetCurrentSession は現在のセッションを返す。セッションがなければnilを返す。
// アクセストークンが期限切れ間近であればリフレッシュし、TOKEN_REFRESHEDを発行する。
// リフレッシュトークンが拒否された場合は*model.InvalidCredentialErrorを返す。
func (c *Client) GetCurrentSession(ctx context.Context) (*model.Session, error) {
	current := c.snapshot()
	if current == nil || !c.needsRefresh(current) {
		return current, nil
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// 待機中に別のリクエストがリフレッシュ済みの場合がある
	current = c.snapshot()
	if current == nil || !c.needsRefresh(current) {
		return current, nil
	}

	refreshed, err := c.auth.Refresh(ctx, current.RefreshToken)
	if err != nil {
		if model.IsInvalidCredential(err) {
			c.logger.Info("refresh token rejected",
				slog.String("user_id", current.User.ID),
				slog.String("reason", err.Error()),
			)
			return nil, err
		}
		c.metrics.RecordGatewayError("refresh")
		return nil, &model.NetworkError{Op: "refresh", Err: err}
	}

	c.mu.Lock()
	// サインアウトと競合した場合は復活させない
	if c.session == nil || c.session.RefreshToken != current.RefreshToken {
		c.mu.Unlock()
		return c.snapshot(), nil
	}
	c.session = refreshed
	c.mu.Unlock()

	c.metrics.RecordTokenRefresh()
	c.events.publish(model.AuthEvent{Kind: model.AuthEventTokenRefreshed, Session: refreshed})
	return copySession(refreshed), nil
}

// OnAuthStateChange は認証状態変化イベントを購読する。
// イベントは発行順に配送され、解除関数を呼ぶとチャネルはクローズされる。
func (c *Client) OnAuthStateChange() (<-chan model.AuthEvent, func()) {
	return c.events.subscribe()
}

// SignIn はメールアドレスとパスワードでサインインし、SIGNED_INを発行する。
func (c *Client) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	session, err := c.auth.SignIn(ctx, email, password)
	if err != nil {
		return nil, c.classify("sign_in", err)
	}
	c.setSession(session, model.AuthEventSignedIn)
	return copySession(session), nil
}

// SignUp はアカウントを作成してサインインし、SIGNED_INを発行する。
func (c *Client) SignUp(ctx context.Context, email, password, fullName string) (*model.Session, error) {
	session, err := c.auth.SignUp(ctx, email, password, fullName)
	if err != nil {
		return nil, c.classify("sign_up", err)
	}
	c.setSession(session, model.AuthEventSignedIn)
	return copySession(session), nil
}

// SignOut はゲートウェイ側のセッションを無効化し、SIGNED_OUTを発行する。
// リモートの無効化に失敗してもローカルのセッションは破棄する。
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	previous := c.session
	c.session = nil
	c.mu.Unlock()

	c.events.publish(model.AuthEvent{Kind: model.AuthEventSignedOut})

	if previous == nil {
		return nil
	}
	if err := c.auth.SignOut(ctx, previous.RefreshToken); err != nil {
		c.metrics.RecordGatewayError("sign_out")
		return &model.NetworkError{Op: "sign_out", Err: err}
	}
	return nil
}

// GetProfileByID はプロフィールを取得する。
// 存在しない場合は*model.NotFoundError、取得失敗時は*model.NetworkErrorを返す。
func (c *Client) GetProfileByID(ctx context.Context, id string) (*model.Profile, error) {
	var accessToken string
	if current := c.snapshot(); current != nil {
		accessToken = current.AccessToken
	}

	profile, err := c.profiles.FindByID(ctx, accessToken, id)
	if err != nil {
		c.metrics.RecordGatewayError("get_profile")
		return nil, &model.NetworkError{Op: "get_profile", Err: err}
	}
	if profile == nil {
		return nil, &model.NotFoundError{Resource: "profile", ID: id}
	}
	return profile, nil
}

// NotifyUserUpdated はプロフィール等の変更をUSER_UPDATEDとして購読者に通知する。
// セッションがなければ何もしない。
func (c *Client) NotifyUserUpdated() {
	current := c.snapshot()
	if current == nil {
		return
	}
	c.events.publish(model.AuthEvent{Kind: model.AuthEventUserUpdated, Session: current})
}

// CurrentRefreshToken は保持中のリフレッシュトークンを返す。Cookieへの保存に使う。
func (c *Client) CurrentRefreshToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.RefreshToken
}

// Close は全購読を解除する。訪問者の破棄時に呼ぶ。
func (c *Client) Close() {
	c.events.close()
}

func (c *Client) setSession(s *model.Session, kind model.AuthEventKind) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	c.events.publish(model.AuthEvent{Kind: kind, Session: copySession(s)})
}

func (c *Client) snapshot() *model.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copySession(c.session)
}

func (c *Client) needsRefresh(s *model.Session) bool {
	return !c.now().Add(c.skew).Before(s.ExpiresAt)
}

// classify は入力起因のエラーはそのまま返し、それ以外はNetworkErrorに包む。
func (c *Client) classify(op string, err error) error {
	var ve *model.ValidationError
	if errors.As(err, &ve) || errors.Is(err, model.ErrInvalidLogin) || errors.Is(err, model.ErrEmailTaken) {
		return err
	}
	c.metrics.RecordGatewayError(op)
	return &model.NetworkError{Op: op, Err: err}
}

func copySession(s *model.Session) *model.Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
