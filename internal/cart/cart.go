// Package cart は訪問者ごとのメモリ上のショッピングカートを提供する。
package cart

import (
	"fmt"
	"sync"

	"github.com/hitoshi/storefront/internal/model"
)

// MaxLineQuantity は1行あたりの数量の上限。
const MaxLineQuantity = 999

func quantityTooLarge() error {
	return &model.ValidationError{Field: "quantity", Message: fmt.Sprintf("quantity must be at most %d", MaxLineQuantity)}
}

// Manager はカート行を保持する。行は商品IDで一意、数量は常に1以上。
// 同一訪問者のリクエストが並行しうるため全操作をロックで直列化する。
type Manager struct {
	mu    sync.RWMutex
	lines []model.CartLine
}

// NewManager は空のカートを生成する。
func NewManager() *Manager {
	return &Manager{}
}

// AddItem は商品をqty個追加する。既に同じ商品の行があれば数量を加算する。
// qtyが0以下、または加算後の数量がMaxLineQuantityを超える場合は
// *model.ValidationErrorを返し、カートは変更しない。
func (m *Manager) AddItem(p model.Product, qty int) error {
	if p.ID == "" {
		return &model.ValidationError{Field: "product_id", Message: "product id is required"}
	}
	if qty <= 0 {
		return &model.ValidationError{Field: "quantity", Message: "quantity must be at least 1"}
	}
	if qty > MaxLineQuantity {
		return quantityTooLarge()
	}
	if p.Price < 0 {
		return &model.ValidationError{Field: "price", Message: "price must not be negative"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if i := m.indexOf(p.ID); i >= 0 {
		if m.lines[i].Quantity > MaxLineQuantity-qty {
			return quantityTooLarge()
		}
		m.lines[i].Quantity += qty
		return nil
	}
	m.lines = append(m.lines, model.CartLine{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Quantity:  qty,
	})
	return nil
}

// UpdateQuantity は数量をqtyに設定する。qtyが0以下なら行を削除する。
// 該当する行がなければ何もしない。qtyがMaxLineQuantityを超える場合は
// *model.ValidationErrorを返し、カートは変更しない。
func (m *Manager) UpdateQuantity(productID string, qty int) error {
	if qty > MaxLineQuantity {
		return quantityTooLarge()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(productID)
	if i < 0 {
		return nil
	}
	if qty <= 0 {
		m.removeAt(i)
		return nil
	}
	m.lines[i].Quantity = qty
	return nil
}

// RemoveItem は行を削除する。存在しなければ何もしない。
func (m *Manager) RemoveItem(productID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i := m.indexOf(productID); i >= 0 {
		m.removeAt(i)
	}
}

// Clear は全ての行を削除する。
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = nil
}

// Lines は追加順のカート行のコピーを返す。
func (m *Manager) Lines() []model.CartLine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.CartLine, len(m.lines))
	copy(out, m.lines)
	return out
}

// Quantity は指定商品の数量を返す。カートになければ0。
func (m *Manager) Quantity(productID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := m.indexOf(productID); i >= 0 {
		return m.lines[i].Quantity
	}
	return 0
}

// IsEmpty はカートが空かを返す。
func (m *Manager) IsEmpty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.lines) == 0
}

// TotalItems は現在の行の数量合計を返す。
func (m *Manager) TotalItems() int {
	return TotalItems(m.Lines())
}

// TotalPrice は現在の行の金額合計を返す。
func (m *Manager) TotalPrice() float64 {
	return TotalPrice(m.Lines())
}

// TotalItems は行の数量合計を返す。
func TotalItems(lines []model.CartLine) int {
	total := 0
	for _, l := range lines {
		total += l.Quantity
	}
	return total
}

// TotalPrice は行の単価×数量の合計を返す。
func TotalPrice(lines []model.CartLine) float64 {
	var total float64
	for _, l := range lines {
		total += l.Price * float64(l.Quantity)
	}
	return total
}

func (m *Manager) indexOf(productID string) int {
	for i, l := range m.lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

func (m *Manager) removeAt(i int) {
	m.lines = append(m.lines[:i], m.lines[i+1:]...)
}
