package usecase

import (
	"context"
	"net/http"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

// 管理者向けの監査ログ照会
type AuditLogUsecase struct {
	logs repo.AuditLogRepository
}

func NewAuditLogUsecase(logs repo.AuditLogRepository) *AuditLogUsecase {
	return &AuditLogUsecase{logs: logs}
}

func (u *AuditLogUsecase) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	if f.Limit < 0 || f.Limit > 100 {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if f.Offset < 0 {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid offset")
	}
	if f.Action != nil {
		switch *f.Action {
		case model.AuditActionUpdateStock, model.AuditActionUpdateOrderStatus,
			model.AuditActionUpdateProduct:
		default:
			return nil, NewHTTPError(http.StatusBadRequest, "invalid action")
		}
	}
	if f.ResourceType != nil {
		switch *f.ResourceType {
		case model.AuditResourceProduct, model.AuditResourceOrder, model.AuditResourceUser:
		default:
			return nil, NewHTTPError(http.StatusBadRequest, "invalid resource_type")
		}
	}

	logs, err := u.logs.List(ctx, f)
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return logs, nil
}
