package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
)

// クライアントが送ってくる注文行
type OrderItemRequest struct {
	ProductID int64 `json:"product"`
	Quantity  int64 `json:"quantity"`
}

// 検証済みの明細と商品代金合計
type AssembledOrder struct {
	Items      []model.OrderItem
	ItemsPrice decimal.Decimal
}

// AssembleOrder は依頼の(product, quantity)列を検証して
// スナップショット明細に変える。副作用なし：在庫は読むだけで減らさない。
// 金額はdecimalで積み上げる（floatの丸め誤差を持ち込まない）。
func AssembleOrder(ctx context.Context, products repo.ProductRepository, reqs []OrderItemRequest) (AssembledOrder, error) {
	if len(reqs) == 0 {
		return AssembledOrder{}, NewHTTPError(http.StatusBadRequest, "no order items")
	}

	items := make([]model.OrderItem, 0, len(reqs))
	itemsPrice := decimal.Zero

	for _, req := range reqs {
		if req.ProductID <= 0 {
			return AssembledOrder{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
		}
		if req.Quantity <= 0 {
			return AssembledOrder{}, NewHTTPError(http.StatusBadRequest, "quantity must be a positive integer")
		}

		p, err := products.FindByID(ctx, req.ProductID)
		if errors.Is(err, repo.ErrNotFound) {
			return AssembledOrder{}, NewHTTPError(http.StatusNotFound, fmt.Sprintf("Product %d not found", req.ProductID))
		}
		if err != nil {
			return AssembledOrder{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}
		// 非公開商品は存在しない扱い
		if !p.IsActive {
			return AssembledOrder{}, NewHTTPError(http.StatusNotFound, fmt.Sprintf("Product %d not found", req.ProductID))
		}

		if p.Stock < req.Quantity {
			return AssembledOrder{}, NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("Insufficient stock for %s. Available: %d", p.Name, p.Stock))
		}

		//商品名・単価・画像は今この時点の値を写す
		items = append(items, model.OrderItem{
			ProductID:           p.ID,
			ProductNameSnapshot: p.Name,
			UnitPriceSnapshot:   p.Price,
			ImageSnapshot:       p.PrimaryImage(),
			Quantity:            req.Quantity,
		})

		itemsPrice = itemsPrice.Add(p.Price.Mul(decimal.NewFromInt(req.Quantity)))
	}

	return AssembledOrder{Items: items, ItemsPrice: itemsPrice}, nil
}
