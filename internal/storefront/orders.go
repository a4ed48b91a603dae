package storefront

import (
	"context"
	"fmt"

	"github.com/hitoshi/storefront/internal/model"
)

// UnknownProductName は削除済み商品の明細に表示する名前。
const UnknownProductName = "Unknown Product"

// Step は注文進捗の1ステップ。
type Step struct {
	Status  model.OrderStatus
	Done    bool
	Current bool
}

// OrderView は注文履歴画面の1注文分の表示内容。
type OrderView struct {
	Order *model.Order
	// Steps はキャンセル済みの注文では空。
	Steps []Step
}

// Orders はユーザーの注文を新しい順に返す。
func (s *Service) Orders(ctx context.Context, userID string) ([]OrderView, error) {
	orders, err := s.orders.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	views := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		fillUnknownProducts(o)
		views = append(views, OrderView{Order: o, Steps: progressSteps(o.Status)})
	}
	return views, nil
}

func fillUnknownProducts(o *model.Order) {
	for i := range o.Items {
		if o.Items[i].ProductName == "" {
			o.Items[i].ProductName = UnknownProductName
		}
	}
}

func progressSteps(status model.OrderStatus) []Step {
	current := status.StepIndex()
	if current < 0 {
		return nil
	}
	steps := make([]Step, len(model.OrderProgress))
	for i, st := range model.OrderProgress {
		steps[i] = Step{Status: st, Done: i <= current, Current: i == current}
	}
	return steps
}
