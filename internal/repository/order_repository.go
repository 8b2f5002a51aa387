package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

// 管理者用注文一覧の絞り込み
type AdminOrderListFilter struct {
	Page   int
	Limit  int
	Status string
	UserID *int64
	From   *time.Time
	To     *time.Time
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error)
	Create(ctx context.Context, order model.Order) (int64, error)

	// deliveredAtが非nilならis_delivered/delivered_atも同時に更新する
	UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus, deliveredAt *time.Time) error

	// 同じキーなら同じ注文を返すための検索
	FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error)

	// 管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)
}
