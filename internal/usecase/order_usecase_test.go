package usecase_test

import (
	"context"
	"net/http"
	"testing"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type orderTestEnv struct {
	uc        *usecase.OrderUsecase
	tm        *TxManagerMock
	orders    *OrderRepoMock
	items     *OrderItemRepoMock
	products  *ProductRepoMock
	inventory *InventoryRepoMock
}

func newOrderTestEnv() *orderTestEnv {
	orders := new(OrderRepoMock)
	items := new(OrderItemRepoMock)
	products := new(ProductRepoMock)
	inventory := new(InventoryRepoMock)
	audit := new(AuditLogRepoMock)

	tm := &TxManagerMock{Repos: &TxReposStub{
		orders:     orders,
		orderItems: items,
		products:   products,
		inventory:  inventory,
		auditLogs:  audit,
	}}
	tm.On("WithinTx", mock.Anything).Return(nil)

	return &orderTestEnv{
		uc:        usecase.NewOrderUsecase(tm),
		tm:        tm,
		orders:    orders,
		items:     items,
		products:  products,
		inventory: inventory,
	}
}

func validPlaceOrderInput() usecase.PlaceOrderInput {
	return usecase.PlaceOrderInput{
		Items: []usecase.OrderItemRequest{{ProductID: 1, Quantity: 3}},
		ShippingAddress: usecase.ShippingAddressInput{
			FullName:   "John Doe",
			Address:    "1 Main St",
			City:       "Springfield",
			PostalCode: "12345",
			Country:    "US",
		},
		PaymentMethod:  "paypal",
		IdempotencyKey: "key-123",
	}
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// Test: 正常注文。pendingで1件作成、在庫は数量ぶんだけ減る
func TestPlaceOrderSuccess(t *testing.T) {
	env := newOrderTestEnv()

	env.orders.On("FindByIdempotencyKey", mock.Anything, int64(7), "key-123").
		Return(model.Order{}, false, nil)
	env.products.On("FindByID", mock.Anything, int64(1)).
		Return(activeProduct(1, "widget", "10.00", 5), nil)

	env.orders.On("Create", mock.Anything, mock.MatchedBy(func(o model.Order) bool {
		return o.Status == model.OrderStatusPending &&
			!o.IsDelivered &&
			o.ItemsPrice.Equal(decimal.RequireFromString("30.00")) &&
			o.TotalPrice.Equal(decimal.RequireFromString("30.00")) &&
			o.PaymentMethod == model.PaymentMethodPaypal
	})).Return(int64(101), nil)

	env.items.On("CreateBulk", mock.Anything, int64(101), mock.MatchedBy(func(items []model.OrderItem) bool {
		return len(items) == 1 && items[0].Quantity == 3 && items[0].ProductNameSnapshot == "widget"
	})).Return(nil)

	//減算は注文数量ちょうど
	env.inventory.On("DecreaseStockIfEnough", mock.Anything, int64(1), int64(3)).
		Return(true, nil)

	out, err := env.uc.PlaceOrder(context.Background(), 7, validPlaceOrderInput())
	assert.NoError(t, err)
	assert.Equal(t, int64(101), out.ID)
	assert.Equal(t, "pending", out.Status)
	assert.False(t, out.IsDelivered)
	assert.True(t, out.ItemsPrice.Equal(decimal.RequireFromString("30.00")))
	assert.True(t, out.TotalPrice.Equal(decimal.RequireFromString("30.00")))

	env.orders.AssertExpectations(t)
	env.items.AssertExpectations(t)
	env.inventory.AssertExpectations(t)
}

// Test: taxPrice/shippingPriceを足した合計
func TestPlaceOrderTotalWithTaxAndShipping(t *testing.T) {
	env := newOrderTestEnv()

	in := validPlaceOrderInput()
	in.TaxPrice = decPtr("5.00")
	in.ShippingPrice = decPtr("2.50")

	env.orders.On("FindByIdempotencyKey", mock.Anything, int64(7), "key-123").
		Return(model.Order{}, false, nil)
	env.products.On("FindByID", mock.Anything, int64(1)).
		Return(activeProduct(1, "widget", "10.00", 5), nil)
	env.orders.On("Create", mock.Anything, mock.MatchedBy(func(o model.Order) bool {
		// totalPrice = itemsPrice + taxPrice + shippingPrice ぴったり
		return o.ItemsPrice.Equal(decimal.RequireFromString("30.00")) &&
			o.TaxPrice.Equal(decimal.RequireFromString("5.00")) &&
			o.ShippingPrice.Equal(decimal.RequireFromString("2.50")) &&
			o.TotalPrice.Equal(decimal.RequireFromString("37.50"))
	})).Return(int64(102), nil)
	env.items.On("CreateBulk", mock.Anything, int64(102), mock.Anything).Return(nil)
	env.inventory.On("DecreaseStockIfEnough", mock.Anything, int64(1), int64(3)).Return(true, nil)

	out, err := env.uc.PlaceOrder(context.Background(), 7, in)
	assert.NoError(t, err)
	assert.True(t, out.TotalPrice.Equal(decimal.RequireFromString("37.50")))
}

// Test: 在庫不足。注文は作られず在庫も動かない
func TestPlaceOrderInsufficientStock(t *testing.T) {
	env := newOrderTestEnv()

	in := validPlaceOrderInput()
	in.Items = []usecase.OrderItemRequest{{ProductID: 1, Quantity: 5}}

	env.orders.On("FindByIdempotencyKey", mock.Anything, int64(7), "key-123").
		Return(model.Order{}, false, nil)
	env.products.On("FindByID", mock.Anything, int64(1)).
		Return(activeProduct(1, "widget", "10.00", 2), nil)

	_, err := env.uc.PlaceOrder(context.Background(), 7, in)

	he, ok := usecase.AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Status)
	assert.Equal(t, "Insufficient stock for widget. Available: 2", he.Message)

	env.orders.AssertNotCalled(t, "Create")
	env.items.AssertNotCalled(t, "CreateBulk")
	env.inventory.AssertNotCalled(t, "DecreaseStockIfEnough")
}

// Test: 存在しない商品。注文は作られない
func TestPlaceOrderProductNotFound(t *testing.T) {
	env := newOrderTestEnv()

	env.orders.On("FindByIdempotencyKey", mock.Anything, int64(7), "key-123").
		Return(model.Order{}, false, nil)
	env.products.On("FindByID", mock.Anything, int64(1)).
		Return(model.Product{}, repo.ErrNotFound)

	_, err := env.uc.PlaceOrder(context.Background(), 7, validPlaceOrderInput())

	he, ok := usecase.AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusNotFound, he.Status)

	env.orders.AssertNotCalled(t, "Create")
}

// Test: 支払い方法が列挙外なら検証エラー。DBには触らない
func TestPlaceOrderInvalidPaymentMethod(t *testing.T) {
	env := newOrderTestEnv()

	in := validPlaceOrderInput()
	in.PaymentMethod = "bitcoin"

	_, err := env.uc.PlaceOrder(context.Background(), 7, in)

	he, ok := usecase.AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Status)
	assert.Equal(t, "invalid payment method", he.Message)

	env.tm.AssertNotCalled(t, "WithinTx", mock.Anything)
}

// Test: 配送先の必須フィールド
func TestPlaceOrderMissingShippingField(t *testing.T) {
	env := newOrderTestEnv()

	in := validPlaceOrderInput()
	in.ShippingAddress.City = "  "

	_, err := env.uc.PlaceOrder(context.Background(), 7, in)

	he, ok := usecase.AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Status)
	assert.Equal(t, "city is required", he.Message)

	env.tm.AssertNotCalled(t, "WithinTx", mock.Anything)
}

// Test: 明細が空なら400
func TestPlaceOrderEmptyItems(t *testing.T) {
	env := newOrderTestEnv()

	in := validPlaceOrderInput()
	in.Items = nil

	_, err := env.uc.PlaceOrder(context.Background(), 7, in)

	he, ok := usecase.AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Status)
	assert.Equal(t, "no order items", he.Message)
}

// Test: 同じキーの再送は同じ注文を返す。二重作成しない
func TestPlaceOrderIdempotentReplay(t *testing.T) {
	env := newOrderTestEnv()

	existing := model.Order{
		ID:         101,
		UserID:     7,
		Status:     model.OrderStatusPending,
		TotalPrice: decimal.RequireFromString("30.00"),
	}
	env.orders.On("FindByIdempotencyKey", mock.Anything, int64(7), "key-123").
		Return(existing, true, nil)
	env.items.On("ListByOrderID", mock.Anything, int64(101)).
		Return([]model.OrderItem{}, nil)

	out, err := env.uc.PlaceOrder(context.Background(), 7, validPlaceOrderInput())
	assert.NoError(t, err)
	assert.Equal(t, int64(101), out.ID)

	env.orders.AssertNotCalled(t, "Create")
	env.inventory.AssertNotCalled(t, "DecreaseStockIfEnough")
}

// Test: 組み立て後に他の注文が在庫を取ったら失敗する（トランザクションで巻き戻る）
func TestPlaceOrderDecrementLostRace(t *testing.T) {
	env := newOrderTestEnv()

	env.orders.On("FindByIdempotencyKey", mock.Anything, int64(7), "key-123").
		Return(model.Order{}, false, nil)
	env.products.On("FindByID", mock.Anything, int64(1)).
		Return(activeProduct(1, "widget", "10.00", 5), nil)
	env.orders.On("Create", mock.Anything, mock.Anything).Return(int64(101), nil)
	env.items.On("CreateBulk", mock.Anything, int64(101), mock.Anything).Return(nil)
	env.inventory.On("DecreaseStockIfEnough", mock.Anything, int64(1), int64(3)).
		Return(false, nil)

	_, err := env.uc.PlaceOrder(context.Background(), 7, validPlaceOrderInput())

	he, ok := usecase.AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Status)
	assert.Contains(t, he.Message, "widget")
}

// Test: 一覧のページング情報
func TestListMyOrdersPagination(t *testing.T) {
	env := newOrderTestEnv()

	orders := []model.Order{{ID: 30, UserID: 7}, {ID: 29, UserID: 7}}
	env.orders.On("ListByUserID", mock.Anything, int64(7), 2, 10).
		Return(orders, int64(25), nil)
	env.items.On("ListByOrderID", mock.Anything, mock.Anything).
		Return([]model.OrderItem{}, nil)

	out, err := env.uc.ListMyOrders(context.Background(), 7, 2, 10)
	assert.NoError(t, err)
	assert.Len(t, out.Orders, 2)
	assert.Equal(t, 2, out.Pagination.Page)
	assert.Equal(t, 3, out.Pagination.Pages)
	assert.Equal(t, int64(25), out.Pagination.Total)
	assert.True(t, out.Pagination.HasNext)
	assert.True(t, out.Pagination.HasPrev)
}

// Test: 他人の注文は403、管理者なら見られる
func TestGetOrderDetailAuthorization(t *testing.T) {
	env := newOrderTestEnv()

	order := model.Order{ID: 101, UserID: 7}
	env.orders.On("FindByID", mock.Anything, int64(101)).Return(order, nil)
	env.items.On("ListByOrderID", mock.Anything, int64(101)).
		Return([]model.OrderItem{}, nil)

	//所有者
	_, err := env.uc.GetOrderDetail(context.Background(), 7, model.RoleUser, 101)
	assert.NoError(t, err)

	//他人
	_, err = env.uc.GetOrderDetail(context.Background(), 8, model.RoleUser, 101)
	he, ok := usecase.AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusForbidden, he.Status)

	//管理者
	_, err = env.uc.GetOrderDetail(context.Background(), 8, model.RoleAdmin, 101)
	assert.NoError(t, err)
}

// Test: 注文が無ければ404
func TestGetOrderDetailNotFound(t *testing.T) {
	env := newOrderTestEnv()

	env.orders.On("FindByID", mock.Anything, int64(404)).
		Return(model.Order{}, repo.ErrNotFound)

	_, err := env.uc.GetOrderDetail(context.Background(), 7, model.RoleUser, 404)

	he, ok := usecase.AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusNotFound, he.Status)
}
