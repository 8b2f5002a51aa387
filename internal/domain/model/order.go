package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch st := OrderStatus(s); st {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return st, true
	default:
		return "", false
	}
}

// 遷移表。usecaseには表ごと注入する（厳密化は設定変更で済む）
type OrderTransitions map[OrderStatus][]OrderStatus

func (t OrderTransitions) Allowed(from OrderStatus, to OrderStatus) bool {
	for _, s := range t[from] {
		if s == to {
			return true
		}
	}
	return false
}

// delivered / cancelled だけ終端。途中の順序は強制しない
var DefaultOrderTransitions = OrderTransitions{
	OrderStatusPending: {
		OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled,
	},
	OrderStatusProcessing: {
		OrderStatusPending, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled,
	},
	OrderStatusShipped: {
		OrderStatusPending, OrderStatusProcessing,
		OrderStatusDelivered, OrderStatusCancelled,
	},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
}

type PaymentMethod string

const (
	PaymentMethodPaypal         PaymentMethod = "paypal"
	PaymentMethodStripe         PaymentMethod = "stripe"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch m := PaymentMethod(s); m {
	case PaymentMethodPaypal, PaymentMethodStripe, PaymentMethodCashOnDelivery:
		return m, true
	default:
		return "", false
	}
}

// 配送先は注文時点の値をそのまま埋め込む（住所マスタへの参照ではない）
type ShippingAddress struct {
	FullName   string `gorm:"column:ship_full_name;type:varchar(255);not null" json:"full_name"`
	Address    string `gorm:"column:ship_address;type:varchar(255);not null" json:"address"`
	City       string `gorm:"column:ship_city;type:varchar(100);not null" json:"city"`
	PostalCode string `gorm:"column:ship_postal_code;type:varchar(20);not null" json:"postal_code"`
	Country    string `gorm:"column:ship_country;type:varchar(100);not null" json:"country"`
}

// 注文は追記専用。金額は作成時に確定し、以後再計算しない
type Order struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64           `gorm:"not null;index" json:"user_id"`
	Items           []OrderItem     `gorm:"foreignKey:OrderID" json:"items"`
	ShippingAddress ShippingAddress `gorm:"embedded" json:"shipping_address"`
	PaymentMethod   PaymentMethod   `gorm:"type:varchar(20);not null" json:"payment_method"`
	ItemsPrice      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"items_price"`
	TaxPrice        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"tax_price"`
	ShippingPrice   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"shipping_price"`
	TotalPrice      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_price"`
	Status          OrderStatus     `gorm:"type:varchar(20);not null;index" json:"status"`
	IsDelivered     bool            `gorm:"not null;default:false" json:"is_delivered"`
	DeliveredAt     *time.Time      `json:"delivered_at"`
	IdempotencyKey  string          `gorm:"type:varchar(255);not null;uniqueIndex" json:"-"`
	CreatedAt       time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
