package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/storefront/internal/model"
)

// PostgresCartItemRepo はPostgreSQLを使用したカート行リポジトリ。
type PostgresCartItemRepo struct {
	db *sql.DB
}

// NewPostgresCartItemRepo はPostgresCartItemRepoを生成する。
func NewPostgresCartItemRepo(db *sql.DB) *PostgresCartItemRepo {
	return &PostgresCartItemRepo{db: db}
}

// ReplaceForUser はユーザーのカート行を削除してから与えられた内容を挿入する。
func (r *PostgresCartItemRepo) ReplaceForUser(ctx context.Context, userID string, items []model.CartItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear cart items: %w", err)
	}

	for _, item := range items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO cart_items (user_id, product_id, quantity, updated_at)
			 VALUES ($1, $2, $3, $4)`,
			userID, item.ProductID, item.Quantity, item.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert cart item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListActiveCarts はカート行を持つユーザーごとの集計を更新が新しい順に返す。
func (r *PostgresCartItemRepo) ListActiveCarts(ctx context.Context) ([]model.ActiveCart, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ci.user_id, COALESCE(p.email, ''), SUM(ci.quantity), MAX(ci.updated_at)
		 FROM cart_items ci
		 LEFT JOIN profiles p ON p.id = ci.user_id
		 GROUP BY ci.user_id, p.email
		 ORDER BY MAX(ci.updated_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active carts: %w", err)
	}
	defer rows.Close()

	var carts []model.ActiveCart
	for rows.Next() {
		var c model.ActiveCart
		if err := rows.Scan(&c.UserID, &c.Email, &c.TotalItems, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan active cart: %w", err)
		}
		carts = append(carts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate active carts: %w", err)
	}
	return carts, nil
}

// CountActiveCarts はカート行を持つユーザー数を返す。
func (r *PostgresCartItemRepo) CountActiveCarts(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT user_id) FROM cart_items`,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active carts: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ CartItemRepository = (*PostgresCartItemRepo)(nil)
