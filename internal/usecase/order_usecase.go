package usecase

import (
	"context"
	"net/http"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
)

type OrderUsecase struct {
	tx repo.TransactionManager
}

func NewOrderUsecase(tx repo.TransactionManager) *OrderUsecase {
	return &OrderUsecase{tx: tx}
}

type ShippingAddressInput struct {
	FullName   string `json:"fullName"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type PlaceOrderInput struct {
	Items           []OrderItemRequest
	ShippingAddress ShippingAddressInput
	PaymentMethod   string
	TaxPrice        *decimal.Decimal
	ShippingPrice   *decimal.Decimal
	IdempotencyKey  string
}

type OrderItemOutput struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image"`
	Quantity  int64           `json:"quantity"`
}

type OrderOutput struct {
	ID              int64                 `json:"id"`
	UserID          int64                 `json:"user_id"`
	Items           []OrderItemOutput     `json:"items"`
	ShippingAddress model.ShippingAddress `json:"shipping_address"`
	PaymentMethod   string                `json:"payment_method"`
	ItemsPrice      decimal.Decimal       `json:"items_price"`
	TaxPrice        decimal.Decimal       `json:"tax_price"`
	ShippingPrice   decimal.Decimal       `json:"shipping_price"`
	TotalPrice      decimal.Decimal       `json:"total_price"`
	Status          string                `json:"status"`
	IsDelivered     bool                  `json:"is_delivered"`
	DeliveredAt     *time.Time            `json:"delivered_at"`
	CreatedAt       time.Time             `json:"created_at"`
}

type OrdersPageOutput struct {
	Orders     []OrderOutput `json:"orders"`
	Pagination Pagination    `json:"pagination"`
}

// 注文確定。検証→注文作成→明細作成→在庫減算を1トランザクションで行う。
// 在庫減算が1件でも失敗したら注文ごとロールバックされる。
func (u *OrderUsecase) PlaceOrder(ctx context.Context, userID int64, in PlaceOrderInput) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	//永続化の前に入力だけで決まる検証を全部済ませる
	if len(in.Items) == 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "no order items")
	}
	if err := validateShippingAddress(in.ShippingAddress); err != nil {
		return OrderOutput{}, err
	}
	method, ok := model.ParsePaymentMethod(in.PaymentMethod)
	if !ok {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid payment method")
	}

	//taxPrice/shippingPrice は省略可（デフォルト0）
	taxPrice := decimal.Zero
	if in.TaxPrice != nil {
		taxPrice = *in.TaxPrice
	}
	shippingPrice := decimal.Zero
	if in.ShippingPrice != nil {
		shippingPrice = *in.ShippingPrice
	}
	if taxPrice.IsNegative() || shippingPrice.IsNegative() {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "price must not be negative")
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" || len(key) > 255 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid idempotency key")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 同じキーなら同じ注文を返す
		existing, found, err := r.Orders().FindByIdempotencyKey(ctx, userID, key)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if found {
			items, err := r.OrderItems().ListByOrderID(ctx, existing.ID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			out = toOrderOutput(existing, items)
			return nil
		}

		//明細の組み立て（在庫は読むだけ）
		assembled, err := AssembleOrder(ctx, r.Products(), in.Items)
		if err != nil {
			return err
		}

		//合計は作成時に一度だけ計算する
		totalPrice := assembled.ItemsPrice.Add(taxPrice).Add(shippingPrice)

		now := time.Now()
		order := model.Order{
			UserID: userID,
			ShippingAddress: model.ShippingAddress{
				FullName:   strings.TrimSpace(in.ShippingAddress.FullName),
				Address:    strings.TrimSpace(in.ShippingAddress.Address),
				City:       strings.TrimSpace(in.ShippingAddress.City),
				PostalCode: strings.TrimSpace(in.ShippingAddress.PostalCode),
				Country:    strings.TrimSpace(in.ShippingAddress.Country),
			},
			PaymentMethod:  method,
			ItemsPrice:     assembled.ItemsPrice,
			TaxPrice:       taxPrice,
			ShippingPrice:  shippingPrice,
			TotalPrice:     totalPrice,
			Status:         model.OrderStatusPending,
			IsDelivered:    false,
			IdempotencyKey: key,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		orderID, err := r.Orders().Create(ctx, order)
		if err != nil {
			//同時に同じキーが入った場合はもう一度検索して同じ結果を返す
			ex2, found2, err2 := r.Orders().FindByIdempotencyKey(ctx, userID, key)
			if err2 == nil && found2 {
				items2, err3 := r.OrderItems().ListByOrderID(ctx, ex2.ID)
				if err3 != nil {
					return NewHTTPError(http.StatusInternalServerError, "db error")
				}
				out = toOrderOutput(ex2, items2)
				return nil
			}
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if err := r.OrderItems().CreateBulk(ctx, orderID, assembled.Items); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//在庫減算。条件付きUPDATEなので並行注文が重なっても売り越さない
		for _, it := range assembled.Items {
			ok, err := r.Inventory().DecreaseStockIfEnough(ctx, it.ProductID, it.Quantity)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !ok {
				//組み立て後に他の注文が在庫を取った。注文ごと巻き戻す
				return NewHTTPError(http.StatusBadRequest,
					"Insufficient stock for "+it.ProductNameSnapshot)
			}
		}

		order.ID = orderID
		out = toOrderOutput(order, assembled.Items)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64, page int, limit int) (OrdersPageOutput, error) {
	if userID <= 0 {
		return OrdersPageOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if page < 1 {
		return OrdersPageOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if limit < 1 || limit > 100 {
		return OrdersPageOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	var out OrdersPageOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListByUserID(ctx, userID, page, limit)
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
			Pagination: NewPagination(page, limit, total),
		}
		return nil
	})

	if err != nil {
		return OrdersPageOutput{}, err
	}
	return out, nil
}

// 本人または管理者だけが見られる
func (u *OrderUsecase) GetOrderDetail(ctx context.Context, userID int64, role model.Role, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
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
		if o.UserID != userID && role != model.RoleAdmin {
			return NewHTTPError(http.StatusForbidden, "Access denied")
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		out = toOrderOutput(o, items)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

func validateShippingAddress(a ShippingAddressInput) error {
	fields := []struct {
		name  string
		value string
	}{
		{"fullName", a.FullName},
		{"address", a.Address},
		{"city", a.City},
		{"postalCode", a.PostalCode},
		{"country", a.Country},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return NewHTTPError(http.StatusBadRequest, f.name+" is required")
		}
	}
	return nil
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Name:      it.ProductNameSnapshot,
			Price:     it.UnitPriceSnapshot,
			Image:     it.ImageSnapshot,
			Quantity:  it.Quantity,
		})
	}

	return OrderOutput{
		ID:              o.ID,
		UserID:          o.UserID,
		Items:           outItems,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   string(o.PaymentMethod),
		ItemsPrice:      o.ItemsPrice,
		TaxPrice:        o.TaxPrice,
		ShippingPrice:   o.ShippingPrice,
		TotalPrice:      o.TotalPrice,
		Status:          string(o.Status),
		IsDelivered:     o.IsDelivered,
		DeliveredAt:     o.DeliveredAt,
		CreatedAt:       o.CreatedAt,
	}
}
