package usecase

import (
	"context"
	"net/http"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

type AdminOrderUsecase struct {
	tx          repo.TransactionManager
	transitions model.OrderTransitions
}

// 遷移表は注入する。厳密な順序にしたければ表を差し替えるだけでいい
func NewAdminOrderUsecase(tx repo.TransactionManager, transitions model.OrderTransitions) *AdminOrderUsecase {
	if transitions == nil {
		transitions = model.DefaultOrderTransitions
	}
	return &AdminOrderUsecase{tx: tx, transitions: transitions}
}

type AdminUpdateOrderStatusInput struct {
	Status string
}

// 管理者用の注文一覧
func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) (OrdersPageOutput, error) {
	if f.Page < 1 {
		return OrdersPageOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return OrdersPageOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if f.Status != "" {
		if _, ok := model.ParseOrderStatus(f.Status); !ok {
			return OrdersPageOutput{}, NewHTTPError(http.StatusBadRequest, "invalid status")
		}
	}

	var out OrdersPageOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListAdmin(ctx, f)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		outs := make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			outs = append(outs, toOrderOutput(o, items))
		}

		out = OrdersPageOutput{
			Orders:     outs,
			Pagination: NewPagination(f.Page, f.Limit, total),
		}
		return nil
	})

	if err != nil {
		return OrdersPageOutput{}, err
	}
	return out, nil
}

// ステータス更新。deliveredなら配達フラグと時刻、cancelledなら在庫戻し
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actorAdminUserID int64, orderID int64, in AdminUpdateOrderStatusInput) (OrderOutput, error) {
	if actorAdminUserID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	newStatus, ok := model.ParseOrderStatus(strings.TrimSpace(in.Status))
	if !ok {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "Order not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		// すでに同じなら何もしない
		if o.Status == newStatus {
			items, err := r.OrderItems().ListByOrderID(ctx, orderID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			out = toOrderOutput(o, items)
			return nil
		}

		if !u.transitions.Allowed(o.Status, newStatus) {
			return NewHTTPError(http.StatusBadRequest,
				"cannot change "+string(o.Status)+" order to "+string(newStatus))
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		// キャンセルは確保済み在庫を戻す
		if newStatus == model.OrderStatusCancelled {
			for _, it := range items {
				if err := r.Inventory().IncreaseStock(ctx, it.ProductID, it.Quantity); err != nil {
					return NewHTTPError(http.StatusInternalServerError, "db error")
				}
			}
		}

		now := time.Now()
		var deliveredAt *time.Time
		if newStatus == model.OrderStatusDelivered {
			deliveredAt = &now
		}

		if err := r.Orders().UpdateStatus(ctx, orderID, newStatus, deliveredAt); err != nil {
			if err == repo.ErrNotFound {
				return NewHTTPError(http.StatusNotFound, "Order not found")
			}
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//監査ログ（UPDATE_ORDER_STATUS）
		beforeJSON := `{"status":"` + string(o.Status) + `"}`
		afterJSON := `{"status":"` + string(newStatus) + `"}`
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  actorAdminUserID,
			Action:       model.AuditActionUpdateOrderStatus,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   orderID,
			BeforeJSON:   beforeJSON,
			AfterJSON:    afterJSON,
			CreatedAt:    now,
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		o.Status = newStatus
		if deliveredAt != nil {
			o.IsDelivered = true
			o.DeliveredAt = deliveredAt
		}
		out = toOrderOutput(o, items)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}
