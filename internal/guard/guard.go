// Package guard は認証状態とロールに基づいてページ表示の可否を判定する。
package guard

import (
	"context"
	"net/url"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/session"
)

// Kind は判定結果の種別。
type Kind string

const (
	KindLoading  Kind = "loading"
	KindRedirect Kind = "redirect"
	KindRender   Kind = "render"
)

// HomePath は権限不足時の遷移先。
const HomePath = "/"

// Decision は判定結果。LocationはKindRedirectの場合のみ設定される。
type Decision struct {
	Kind     Kind
	Location string
}

// Requirement はページの表示条件。ゼロ値はログイン済みであることのみを要求する。
type Requirement struct {
	role model.Role
}

// RequireUser はログイン済みであることを要求する。
func RequireUser() Requirement {
	return Requirement{}
}

// RequireRole はログイン済みかつ指定ロールであることを要求する。
func RequireRole(role model.Role) Requirement {
	return Requirement{role: role}
}

// Role は要求ロールを返す。ロールを要求しない場合は空文字。
func (r Requirement) Role() model.Role {
	return r.role
}

// String はメトリクスのラベルに使う名前を返す。
func (r Requirement) String() string {
	if r.role == "" {
		return "user"
	}
	return "role:" + string(r.role)
}

// Decide は状態から判定を行う純粋関数。
// 初回ロード中は常にKindLoadingを返し、未ログインはログイン画面へ、
// ロール不一致はトップへリダイレクトする。
// ロールを要求する場合、プロフィール取得待ちの間もKindLoadingとする。
func Decide(st session.State, req Requirement, requestedPath string) Decision {
	if st.Loading {
		return Decision{Kind: KindLoading}
	}
	if !st.Authenticated() {
		return Decision{Kind: KindRedirect, Location: LoginLocation(requestedPath)}
	}
	if req.role == "" {
		return Decision{Kind: KindRender}
	}
	if st.Resolving() {
		return Decision{Kind: KindLoading}
	}
	if st.Role() != req.role {
		return Decision{Kind: KindRedirect, Location: HomePath}
	}
	return Decision{Kind: KindRender}
}

// LoginLocation は戻り先を付与したログイン画面のURLを返す。
func LoginLocation(returnPath string) string {
	return session.LoginPath + "?returnUrl=" + url.QueryEscape(returnPath)
}

// Source は状態の取得と変更通知を提供する。session.Managerが実装する。
type Source interface {
	State() session.State
	Subscribe() (<-chan session.State, func())
}

// Watch は状態が変わるたびに判定をやり直し、結果が変わった場合に送出する。
// 最初の判定は即座に送出される。ctxの終了または購読の終了でチャネルを閉じる。
func Watch(ctx context.Context, src Source, req Requirement, requestedPath string) <-chan Decision {
	out := make(chan Decision, 1)
	updates, unsubscribe := src.Subscribe()

	go func() {
		defer close(out)
		defer unsubscribe()

		last := Decide(src.State(), req, requestedPath)
		select {
		case out <- last:
		case <-ctx.Done():
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case st, ok := <-updates:
				if !ok {
					return
				}
				d := Decide(st, req, requestedPath)
				if d == last {
					continue
				}
				last = d
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
