// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/storefront/internal/model"
)

// AccountRepository は認証基盤のユーザーレコードの永続化インターフェース。
type AccountRepository interface {
	// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// CreateWithProfile はアカウントとプロフィールを同一トランザクションで作成する。
	// メールアドレスが重複している場合はErrDuplicateを返す。
	CreateWithProfile(ctx context.Context, account *model.Account, profile *model.Profile) error
}

// RefreshTokenRepository はリフレッシュトークンの永続化インターフェース。
type RefreshTokenRepository interface {
	// Create はリフレッシュトークンを保存する。
	Create(ctx context.Context, token *model.RefreshToken) error

	// FindActiveByHash は失効しておらず期限内のトークンをハッシュで検索する。
	// 見つからない場合はnilを返す。
	FindActiveByHash(ctx context.Context, tokenHash string, now time.Time) (*model.RefreshToken, error)

	// Rotate は旧トークンを失効させ、新トークンを同一トランザクションで保存する。
	// 旧トークンが既に失効済みの場合はfalseを返し、新トークンは保存しない。
	Rotate(ctx context.Context, oldID string, next *model.RefreshToken, now time.Time) (bool, error)

	// RevokeByHash はハッシュに一致するトークンを失効させる。存在しなくてもエラーにしない。
	RevokeByHash(ctx context.Context, tokenHash string, now time.Time) error

	// RevokeAllByUserID は指定ユーザーの有効なトークンを全て失効させる。
	RevokeAllByUserID(ctx context.Context, userID string, now time.Time) error

	// DeleteExpired は期限切れまたは失効から一定時間経過したトークンを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// ProfileRepository はプロフィールの永続化インターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// UpdateContact は氏名・電話番号・住所を更新し、更新後のプロフィールを返す。
	// 見つからない場合はnilを返す。
	UpdateContact(ctx context.Context, id, fullName, phone, address string) (*model.Profile, error)

	// Count はプロフィール総数を返す。
	Count(ctx context.Context) (int, error)
}

// ProductRepository は商品の永続化インターフェース。
type ProductRepository interface {
	// List は商品を名前順で返す。categoryが空でなければそのカテゴリに絞り込む。
	List(ctx context.Context, category string) ([]*model.Product, error)

	// FindByID は指定IDの商品を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Product, error)

	// FindByIDs は指定IDの商品をIDをキーとするマップで返す。存在しないIDは含まれない。
	FindByIDs(ctx context.Context, ids []string) (map[string]*model.Product, error)

	// Create は商品を作成する。
	Create(ctx context.Context, product *model.Product) error

	// Count は商品総数を返す。
	Count(ctx context.Context) (int, error)
}

// CategoryRepository は商品カテゴリの永続化インターフェース。
type CategoryRepository interface {
	// List はカテゴリを名前順で返す。
	List(ctx context.Context) ([]*model.Category, error)

	// Create はカテゴリを作成する。同名のカテゴリが既にある場合はfalseを返す。
	Create(ctx context.Context, category *model.Category) (bool, error)
}

// OrderRepository は注文の永続化インターフェース。
type OrderRepository interface {
	// CreateWithItems は注文と注文明細を同一トランザクションで作成する。
	// 明細の価格と合計金額はトランザクション内で商品テーブルから再計算して上書きする。
	// 存在しない商品が含まれる場合は*model.NotFoundErrorを返す。
	CreateWithItems(ctx context.Context, order *model.Order) error

	// ListByUserID はユーザーの注文を新しい順に明細付きで返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Order, error)

	// ListAll は全ユーザーの注文を新しい順に最大limit件返す。
	ListAll(ctx context.Context, limit int) ([]*model.Order, error)

	// UpdateStatus は注文ステータスを更新する。見つからない場合は*model.NotFoundErrorを返す。
	UpdateStatus(ctx context.Context, id string, status model.OrderStatus) error

	// Count は注文総数を返す。
	Count(ctx context.Context) (int, error)
}

// CartItemRepository は管理画面のライブカート用カート行の永続化インターフェース。
type CartItemRepository interface {
	// ReplaceForUser はユーザーのカート行を与えられた内容で置き換える。空なら全削除する。
	ReplaceForUser(ctx context.Context, userID string, items []model.CartItem) error

	// ListActiveCarts はカート行を持つユーザーごとの集計を更新が新しい順に返す。
	ListActiveCarts(ctx context.Context) ([]model.ActiveCart, error)

	// CountActiveCarts はカート行を持つユーザー数を返す。
	CountActiveCarts(ctx context.Context) (int, error)
}
