package model

import (
	"strings"
	"time"
)

// OrderStatus は注文の進捗ステータス。
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// PaymentMethodCOD は代金引換を表す。唯一サポートする支払い方法。
const PaymentMethodCOD = "cod"

// OrderProgress はキャンセル以外の注文が進むステップ順。
var OrderProgress = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
}

// ParseOrderStatus は文字列を注文ステータスに変換する。大文字小文字は区別しない。
func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return st, true
	}
	return "", false
}

// StepIndex はOrderProgress上の現在位置を返す。キャンセル済みは-1。
func (s OrderStatus) StepIndex() int {
	for i, step := range OrderProgress {
		if step == s {
			return i
		}
	}
	return -1
}

// Order は確定した注文を表す。
type Order struct {
	ID              string
	UserID          string
	TotalAmount     float64
	Status          OrderStatus
	PaymentMethod   string
	CustomerName    string
	CustomerPhone   string
	CustomerAddress string
	CreatedAt       time.Time
	Items           []OrderItem
}

// OrderItem は注文時点の価格スナップショットを持つ注文明細。
type OrderItem struct {
	ID          string
	OrderID     string
	ProductID   string
	ProductName string
	Quantity    int
	Price       float64
}

// DashboardStats は管理ダッシュボードの集計値。
type DashboardStats struct {
	Products    int
	Orders      int
	Users       int
	ActiveCarts int
}
