package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/lib/pq"

	"github.com/hitoshi/storefront/internal/model"
)

// PostgresOrderRepo はPostgreSQLを使用した注文リポジトリ。
type PostgresOrderRepo struct {
	db *sql.DB
}

// NewPostgresOrderRepo はPostgresOrderRepoを生成する。
func NewPostgresOrderRepo(db *sql.DB) *PostgresOrderRepo {
	return &PostgresOrderRepo{db: db}
}

const orderColumns = `id, user_id, total_amount, status, payment_method,
	customer_name, customer_phone, customer_address, created_at`

// CreateWithItems は注文と注文明細を同一トランザクションで作成する。
// 明細の価格は商品テーブルの現在価格で上書きし、合計金額を再計算する。
func (r *PostgresOrderRepo) CreateWithItems(ctx context.Context, order *model.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ids := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		ids = append(ids, item.ProductID)
	}

	// 注文確定まで価格が変わらないよう共有ロックを取る
	rows, err := tx.QueryContext(ctx,
		`SELECT id, name, price FROM products WHERE id = ANY($1) FOR SHARE`,
		pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("failed to load product prices: %w", err)
	}
	type priced struct {
		name  string
		price float64
	}
	prices := make(map[string]priced, len(ids))
	for rows.Next() {
		var (
			id string
			p  priced
		)
		if err := rows.Scan(&id, &p.name, &p.price); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan product price: %w", err)
		}
		prices[id] = p
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to iterate product prices: %w", err)
	}
	rows.Close()

	var total float64
	for i := range order.Items {
		p, ok := prices[order.Items[i].ProductID]
		if !ok {
			return &model.NotFoundError{Resource: "product", ID: order.Items[i].ProductID}
		}
		order.Items[i].OrderID = order.ID
		order.Items[i].ProductName = p.name
		order.Items[i].Price = p.price
		total += p.price * float64(order.Items[i].Quantity)
	}
	order.TotalAmount = math.Round(total*100) / 100

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, total_amount, status, payment_method,
		   customer_name, customer_phone, customer_address, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		order.ID, order.UserID, order.TotalAmount, string(order.Status), order.PaymentMethod,
		order.CustomerName, order.CustomerPhone, order.CustomerAddress, order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_items (id, order_id, product_id, quantity, price)
			 VALUES ($1, $2, $3, $4, $5)`,
			item.ID, item.OrderID, item.ProductID, item.Quantity, item.Price,
		)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListByUserID はユーザーの注文を新しい順に明細付きで返す。
func (r *PostgresOrderRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Order, error) {
	orders, err := r.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// ListAll は全ユーザーの注文を新しい順に最大limit件返す。
func (r *PostgresOrderRepo) ListAll(ctx context.Context, limit int) ([]*model.Order, error) {
	orders, err := r.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateStatus は注文ステータスを更新する。
func (r *PostgresOrderRepo) UpdateStatus(ctx context.Context, id string, status model.OrderStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $2 WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &model.NotFoundError{Resource: "order", ID: id}
	}
	return nil
}

// Count は注文総数を返す。
func (r *PostgresOrderRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return count, nil
}

func (r *PostgresOrderRepo) queryOrders(ctx context.Context, query string, args ...any) ([]*model.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*model.Order
	for rows.Next() {
		o := &model.Order{}
		var status string
		if err := rows.Scan(&o.ID, &o.UserID, &o.TotalAmount, &status, &o.PaymentMethod,
			&o.CustomerName, &o.CustomerPhone, &o.CustomerAddress, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.Status = model.OrderStatus(status)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	return orders, nil
}

// attachItems は注文明細を1クエリでまとめて取得し各注文に紐付ける。
// 削除済み商品の明細は商品名が空になる。
func (r *PostgresOrderRepo) attachItems(ctx context.Context, orders []*model.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	byID := make(map[string]*model.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT oi.id, oi.order_id, COALESCE(oi.product_id::text, ''), COALESCE(p.name, ''), oi.quantity, oi.price
		 FROM order_items oi
		 LEFT JOIN products p ON p.id = oi.product_id
		 WHERE oi.order_id = ANY($1)
		 ORDER BY oi.order_id, oi.id`,
		pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("failed to list order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.Quantity, &item.Price); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate order items: %w", err)
	}
	return nil
}

// compile-time interface check
var _ OrderRepository = (*PostgresOrderRepo)(nil)
