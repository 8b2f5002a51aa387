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

type productTestEnv struct {
	uc        *usecase.ProductUsecase
	products  *ProductRepoMock
	inventory *InventoryRepoMock
	audit     *AuditLogRepoMock
}

func newProductTestEnv() *productTestEnv {
	products := new(ProductRepoMock)
	inventory := new(InventoryRepoMock)
	audit := new(AuditLogRepoMock)

	tm := &TxManagerMock{Repos: &TxReposStub{
		orders:     new(OrderRepoMock),
		orderItems: new(OrderItemRepoMock),
		products:   products,
		inventory:  inventory,
		auditLogs:  audit,
	}}
	tm.On("WithinTx", mock.Anything).Return(nil)

	return &productTestEnv{
		uc:        usecase.NewProductUsecase(products, tm),
		products:  products,
		inventory: inventory,
		audit:     audit,
	}
}

func TestListPublicProducts(t *testing.T) {
	env := newProductTestEnv()

	min := int64(100)
	env.products.On("ListPublic", mock.Anything, repo.ProductListQuery{
		Page: 1, Limit: 12, Q: "camera", Category: "electronics",
		MinPrice: &min, Sort: "price_asc",
	}).Return([]model.Product{activeProduct(1, "camera", "199.99", 5)}, int64(1), nil)

	out, err := env.uc.ListPublicProducts(context.Background(), usecase.ListProductsInput{
		Page: 1, Limit: 12, Q: "camera", Category: "electronics",
		MinPrice: &min, Sort: "price_asc",
	})
	assert.NoError(t, err)
	assert.Len(t, out.Products, 1)
	assert.Equal(t, int64(1), out.Pagination.Total)
}

// Test: page/limit/sortの検証はDBに触る前に弾く
func TestListPublicProductsValidation(t *testing.T) {
	env := newProductTestEnv()

	cases := []struct {
		name string
		in   usecase.ListProductsInput
	}{
		{"zero page", usecase.ListProductsInput{Page: 0, Limit: 12}},
		{"limit too big", usecase.ListProductsInput{Page: 1, Limit: 101}},
		{"bad sort", usecase.ListProductsInput{Page: 1, Limit: 12, Sort: "oldest"}},
	}
	for _, tc := range cases {
		_, err := env.uc.ListPublicProducts(context.Background(), tc.in)
		he, ok := usecase.AsHTTPError(err)
		assert.True(t, ok, tc.name)
		assert.Equal(t, http.StatusBadRequest, he.Status, tc.name)
	}

	env.products.AssertNotCalled(t, "ListPublic")
}

func TestListPublicProductsPriceRange(t *testing.T) {
	env := newProductTestEnv()

	min, max := int64(500), int64(100)
	_, err := env.uc.ListPublicProducts(context.Background(), usecase.ListProductsInput{
		Page: 1, Limit: 12, MinPrice: &min, MaxPrice: &max,
	})

	he, ok := usecase.AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Status)
	assert.Equal(t, "min_price must be <= max_price", he.Message)
}

func TestGetProductDetail(t *testing.T) {
	env := newProductTestEnv()

	env.products.On("FindByID", mock.Anything, int64(1)).
		Return(activeProduct(1, "camera", "199.99", 5), nil)

	p, err := env.uc.GetProductDetail(context.Background(), 1)
	assert.NoError(t, err)
	assert.Equal(t, "camera", p.Name)
}

// Test: 非公開商品は公開APIでは404
func TestGetProductDetailInactive(t *testing.T) {
	env := newProductTestEnv()

	p := activeProduct(1, "camera", "199.99", 5)
	p.IsActive = false
	env.products.On("FindByID", mock.Anything, int64(1)).Return(p, nil)

	_, err := env.uc.GetProductDetail(context.Background(), 1)

	he, ok := usecase.AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusNotFound, he.Status)
	assert.Equal(t, "Product not found", he.Message)
}

func TestGetProductDetailNotFound(t *testing.T) {
	env := newProductTestEnv()

	env.products.On("FindByID", mock.Anything, int64(404)).
		Return(model.Product{}, repo.ErrNotFound)

	_, err := env.uc.GetProductDetail(context.Background(), 404)

	he, ok := usecase.AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusNotFound, he.Status)
}

func TestAdminCreateProduct(t *testing.T) {
	env := newProductTestEnv()

	env.products.On("Create", mock.Anything, mock.MatchedBy(func(p model.Product) bool {
		return p.Name == "camera" && p.Price.Equal(decimal.RequireFromString("199.99")) &&
			p.Stock == int64(5) && p.IsActive
	})).Return(activeProduct(1, "camera", "199.99", 5), nil)

	p, err := env.uc.AdminCreateProduct(context.Background(), usecase.AdminSaveProductInput{
		Name:  "camera",
		Price: decimal.RequireFromString("199.99"),
		Stock: 5, IsActive: true,
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), p.ID)
}

func TestAdminCreateProductValidation(t *testing.T) {
	env := newProductTestEnv()

	_, err := env.uc.AdminCreateProduct(context.Background(), usecase.AdminSaveProductInput{
		Name:  "  ",
		Price: decimal.RequireFromString("199.99"),
	})
	he, ok := usecase.AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, "name is required", he.Message)

	_, err = env.uc.AdminCreateProduct(context.Background(), usecase.AdminSaveProductInput{
		Name:  "camera",
		Price: decimal.RequireFromString("-1"),
	})
	he, ok = usecase.AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, "price must be >= 0", he.Message)

	env.products.AssertNotCalled(t, "Create")
}

// Test: 商品更新は前後の値を監査ログに残す
func TestAdminUpdateProduct(t *testing.T) {
	env := newProductTestEnv()

	env.products.On("FindByID", mock.Anything, int64(1)).
		Return(activeProduct(1, "camera", "199.99", 5), nil)
	env.products.On("Update", mock.Anything, mock.MatchedBy(func(p model.Product) bool {
		return p.ID == int64(1) && p.Name == "camera mk2"
	})).Return(nil)
	env.audit.On("Create", mock.Anything, mock.MatchedBy(func(l model.AuditLog) bool {
		return l.Action == model.AuditActionUpdateProduct &&
			l.BeforeJSON == `{"name":"camera","price":"199.99"}` &&
			l.AfterJSON == `{"name":"camera mk2","price":"249.99"}`
	})).Return(nil)

	err := env.uc.AdminUpdateProduct(context.Background(), 1, 1, usecase.AdminSaveProductInput{
		Name:  "camera mk2",
		Price: decimal.RequireFromString("249.99"),
	})
	assert.NoError(t, err)

	env.audit.AssertExpectations(t)
}

func TestAdminUpdateProductNotFound(t *testing.T) {
	env := newProductTestEnv()

	env.products.On("FindByID", mock.Anything, int64(404)).
		Return(model.Product{}, repo.ErrNotFound)

	err := env.uc.AdminUpdateProduct(context.Background(), 1, 404, usecase.AdminSaveProductInput{
		Name:  "camera",
		Price: decimal.RequireFromString("199.99"),
	})

	he, ok := usecase.AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusNotFound, he.Status)

	env.products.AssertNotCalled(t, "Update")
}

func TestAdminDeleteProduct(t *testing.T) {
	env := newProductTestEnv()

	env.products.On("SoftDelete", mock.Anything, int64(1)).Return(nil)

	assert.NoError(t, env.uc.AdminDeleteProduct(context.Background(), 1))
	env.products.AssertExpectations(t)
}

// Test: 在庫調整。現在値の付け替え＋差分履歴＋監査ログ
func TestAdminUpdateInventory(t *testing.T) {
	env := newProductTestEnv()

	env.products.On("FindByID", mock.Anything, int64(1)).
		Return(activeProduct(1, "camera", "199.99", 5), nil)
	env.inventory.On("SetStock", mock.Anything, int64(1), int64(12)).Return(nil)
	env.inventory.On("CreateAdjustment", mock.Anything, mock.MatchedBy(func(a model.InventoryAdjustment) bool {
		// 5→12 なのでdelta+7
		return a.ProductID == int64(1) && a.Delta == int64(7) && a.Reason == "restock"
	})).Return(nil)
	env.audit.On("Create", mock.Anything, mock.MatchedBy(func(l model.AuditLog) bool {
		return l.Action == model.AuditActionUpdateStock &&
			l.BeforeJSON == `{"stock":5}` && l.AfterJSON == `{"stock":12}`
	})).Return(nil)

	err := env.uc.AdminUpdateInventory(context.Background(), 1, 1, 12, "restock")
	assert.NoError(t, err)

	env.inventory.AssertExpectations(t)
	env.audit.AssertExpectations(t)
}

func TestAdminUpdateInventoryValidation(t *testing.T) {
	env := newProductTestEnv()

	err := env.uc.AdminUpdateInventory(context.Background(), 1, 1, -1, "restock")
	he, ok := usecase.AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, "stock must be >= 0", he.Message)

	err = env.uc.AdminUpdateInventory(context.Background(), 1, 1, 10, "  ")
	he, ok = usecase.AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, "reason is required", he.Message)

	env.inventory.AssertNotCalled(t, "SetStock")
}
