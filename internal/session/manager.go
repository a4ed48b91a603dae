// Package session は訪問者ごとの認証状態（セッション・ユーザー・プロフィール）を管理する。
//
// Managerはゲートウェイの認証イベントを単一のgoroutineで到着順に適用し、
// 読み手には読み取り専用のスナップショットを提供する。
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/model"
)

// LoginPath はサインアウト後の遷移先。
const LoginPath = "/login"

// Gateway はManagerが利用するゲートウェイの機能。
// SignOutは成否にかかわらず購読者へSIGNED_OUTを発行すること。
type Gateway interface {
	GetCurrentSession(ctx context.Context) (*model.Session, error)
	OnAuthStateChange() (<-chan model.AuthEvent, func())
	SignOut(ctx context.Context) error
	GetProfileByID(ctx context.Context, id string) (*model.Profile, error)
}

// Navigator はプログラムによる画面遷移を行う。
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc は関数をNavigatorとして扱うアダプター。
type NavigatorFunc func(path string)

// Navigate はf(path)を呼ぶ。
func (f NavigatorFunc) Navigate(path string) { f(path) }

// Option はManagerの設定を変更する。
type Option func(*Manager)

// WithLogger はロガーを設定する。
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics はメトリクスコレクターを設定する。
func WithMetrics(c metrics.MetricsCollector) Option {
	return func(m *Manager) { m.metrics = c }
}

// WithNavigator はサインアウト時の遷移先を受け取るNavigatorを設定する。
func WithNavigator(n Navigator) Option {
	return func(m *Manager) { m.navigator = n }
}

// Manager は1訪問者分の認証状態を保持する。
type Manager struct {
	gw        Gateway
	logger    *slog.Logger
	metrics   metrics.MetricsCollector
	navigator Navigator

	mu      sync.RWMutex
	state   State
	changed chan struct{} // 状態変化のたびにcloseして差し替える
	subs    map[int]chan State
	nextSub int
	started bool
	stopped bool
	// signOutGen はSignOutのたびに増え、それ以前に受け取ったイベントの書き込みを無効にする。
	signOutGen uint64
	// pendingSignOuts はSignOutが発行させたSIGNED_OUTのうち未着の数。
	// 未着の間はキューに残っているサインアウト前のイベントを捨てる。
	pendingSignOuts int
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewManager はManagerを生成する。Startを呼ぶまでLoading状態のまま。
func NewManager(gw Gateway, opts ...Option) *Manager {
	m := &Manager{
		gw:      gw,
		logger:  slog.Default(),
		metrics: metrics.Nop{},
		state:   State{Phase: PhaseInitializing, Loading: true},
		changed: make(chan struct{}),
		subs:    make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start は認証イベントを購読してから現在のセッションを取得し、以後のイベントを順に適用する。
// 2回目以降の呼び出しは何もしない。ctxのキャンセルまたはStopで処理を終了する。
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started || m.stopped {
		m.mu.Unlock()
		return
	}
	m.started = true
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	// 初期化中に発生したイベントを取りこぼさないよう先に購読する
	events, unsubscribe := m.gw.OnAuthStateChange()
	go m.run(runCtx, events, unsubscribe)
}

// Stop は処理を停止する。停止後の状態書き込みは破棄される。
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	cancel, done := m.cancel, m.done
	for id, ch := range m.subs {
		close(ch)
		delete(m.subs, id)
	}
	// 待機中のWaitForを解放する
	close(m.changed)
	m.changed = make(chan struct{})
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// State は現在の状態のスナップショットを返す。
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

// Subscribe は状態変化の通知を購読する。
// チャネルは最新の状態のみを保持し、受信が遅れた場合は古い通知を捨てる。
func (m *Manager) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if c, ok := m.subs[id]; ok {
				close(c)
				delete(m.subs, id)
			}
		})
	}
}

// WaitFor は状態がpredを満たすまで待機する。
// ctxが終了した場合は最新の状態とctx.Err()を返す。
func (m *Manager) WaitFor(ctx context.Context, pred func(State) bool) (State, error) {
	for {
		m.mu.RLock()
		st := m.state.clone()
		changed := m.changed
		stopped := m.stopped
		m.mu.RUnlock()

		if pred(st) {
			return st, nil
		}
		if stopped {
			return st, ErrStopped
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return m.State(), ctx.Err()
		}
	}
}

// WaitLoaded は初回の解決が完了するまで待機する。
func (m *Manager) WaitLoaded(ctx context.Context) (State, error) {
	return m.WaitFor(ctx, func(s State) bool { return !s.Loading })
}

// ErrStopped は停止済みのManagerで待機しようとしたことを示す。
var ErrStopped = errors.New("session manager stopped")

// SignOut はゲートウェイでセッションを無効化し、ローカルの状態を破棄してログイン画面へ遷移させる。
// ゲートウェイの呼び出しに失敗してもローカルの状態は破棄する。
// 呼び出し前に発行済みで未適用の認証イベントは適用しない。
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	m.signOutGen++
	m.pendingSignOuts++
	m.mu.Unlock()

	err := m.gw.SignOut(ctx)
	if err != nil {
		m.logger.Warn("gateway sign out failed", slog.String("error", err.Error()))
	}

	m.apply(func(s *State) {
		*s = State{Phase: PhaseAnonymous}
	})

	if m.navigator != nil {
		m.navigator.Navigate(LoginPath)
	}
	return err
}

func (m *Manager) run(ctx context.Context, events <-chan model.AuthEvent, unsubscribe func()) {
	defer close(m.done)
	defer unsubscribe()

	m.initialize(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			gen, stale := m.admit(ev)
			if stale {
				m.logger.Debug("stale auth event dropped", slog.String("event", string(ev.Kind)))
				continue
			}
			m.logger.Debug("auth event received", slog.String("event", string(ev.Kind)))
			m.resolve(ctx, gen, ev.Session, nil)
		}
	}
}

// admit はイベントを適用してよいか判定し、適用時の世代を返す。
// SignOut後は、それが発行させたSIGNED_OUTが届くまでのイベントを古いものとして捨てる。
func (m *Manager) admit(ev model.AuthEvent) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pendingSignOuts > 0 {
		if ev.Kind == model.AuthEventSignedOut {
			m.pendingSignOuts--
		}
		return 0, true
	}
	return m.signOutGen, false
}

// generation は現在の世代を返す。
func (m *Manager) generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.signOutGen
}

// initialize は現在のセッションを取得して最初の解決を行う。
func (m *Manager) initialize(ctx context.Context) {
	gen := m.generation()
	sess, err := m.gw.GetCurrentSession(ctx)
	if err == nil {
		m.resolve(ctx, gen, sess, nil)
		return
	}
	if ctx.Err() != nil {
		return
	}

	if model.IsInvalidCredential(err) {
		// 無効なリフレッシュ資格情報はゲートウェイ側の状態も破棄してから匿名にする
		m.logger.Info("stored credential rejected, signing out", slog.String("reason", err.Error()))
		if serr := m.gw.SignOut(ctx); serr != nil {
			m.logger.Warn("forced sign out failed", slog.String("error", serr.Error()))
		}
		m.resolve(ctx, gen, nil, nil)
		return
	}

	m.logger.Error("failed to get current session", slog.String("error", err.Error()))
	m.resolve(ctx, gen, nil, &model.AuthInitError{Err: err})
}

// resolve はセッションから状態を導出する。セッションがあればプロフィールを取得してから確定する。
// genより後にSignOutが呼ばれていた場合は何も書き込まない。
func (m *Manager) resolve(ctx context.Context, gen uint64, sess *model.Session, initErr error) {
	if sess == nil {
		m.apply(func(s *State) {
			if m.signOutGen != gen {
				return
			}
			*s = State{Phase: PhaseAnonymous, Err: initErr}
		})
		return
	}

	user := sess.User
	m.apply(func(s *State) {
		if m.signOutGen != gen {
			return
		}
		sameUser := s.User != nil && s.User.ID == user.ID
		s.Session = sess
		s.User = &user
		s.Err = nil
		if sameUser && s.Profile != nil {
			// 同一ユーザーのトークン更新等では再取得が終わるまで既存のプロフィールを使う
			s.Phase = PhaseAuthenticated
			return
		}
		s.Profile = nil
		s.Phase = PhaseAuthenticatedPendingProfile
	})

	profile, err := m.gw.GetProfileByID(ctx, user.ID)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		pfe := &model.ProfileFetchError{UserID: user.ID, Err: err}
		m.logger.Warn("profile fetch failed", slog.String("user_id", user.ID), slog.String("error", pfe.Error()))
	}

	m.apply(func(s *State) {
		// 取得中に別ユーザーへ切り替わった、またはサインアウトした場合は結果を捨てる
		if m.signOutGen != gen || s.User == nil || s.User.ID != user.ID {
			return
		}
		// 再取得に失敗した場合は同一ユーザーの既存プロフィールを保持する
		if err == nil {
			s.Profile = profile
		}
		s.Phase = PhaseAuthenticated
		s.Loading = false
	})
}

// apply は状態を更新し、購読者と待機者に通知する。停止後は何もしない。
func (m *Manager) apply(mutate func(*State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}

	prevPhase := m.state.Phase
	mutate(&m.state)
	if m.state.Phase == PhaseAnonymous {
		m.state.Loading = false
	}

	if m.state.Phase != prevPhase {
		m.metrics.RecordAuthTransition(string(m.state.Phase))
		m.logger.Debug("auth state changed",
			slog.String("from", string(prevPhase)),
			slog.String("to", string(m.state.Phase)),
		)
	}

	close(m.changed)
	m.changed = make(chan struct{})

	snapshot := m.state.clone()
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}
