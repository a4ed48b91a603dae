package model

import "time"

// DefaultProductImage は画像未設定の商品に使用するプレースホルダー。
const DefaultProductImage = "/placeholder.svg"

// DefaultProductStock は管理画面から追加した商品の初期在庫数。
const DefaultProductStock = 100

// Product は販売商品を表す。
type Product struct {
	ID          string
	Name        string
	Price       float64
	Category    string
	Description string
	Stock       int
	Image       string
	Popular     bool
	CreatedAt   time.Time
}

// Category は商品カテゴリを表す。名前は一意。
type Category struct {
	ID   string
	Name string
}

// CartLine はカート内の1商品分の行。
type CartLine struct {
	ProductID string
	Name      string
	Price     float64
	Quantity  int
}

// CartItem は管理画面の「ライブカート」用に保存されるカート行。
type CartItem struct {
	UserID    string
	ProductID string
	Quantity  int
	UpdatedAt time.Time
}

// ActiveCart はユーザー単位に集約したカート情報。
type ActiveCart struct {
	UserID     string
	Email      string
	TotalItems int
	UpdatedAt  time.Time
}
