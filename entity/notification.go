package entity

import "github.com/shopspring/decimal"

// Notification is the payload the gateway POSTs to the status URL after a
// buyer completes payment. It is verified and acted on, never stored as
// payment state by the core.
type Notification struct {
	MerchantID   int    `json:"merchantId" bson:"merchant_id"`
	PosID        int    `json:"posId" bson:"pos_id"`
	SessionID    string `json:"sessionId" bson:"session_id"`
	Amount       int64  `json:"amount" bson:"amount"`
	OriginAmount int64  `json:"originAmount" bson:"origin_amount"`
	Currency     string `json:"currency" bson:"currency"`
	OrderID      int64  `json:"orderId" bson:"order_id"`
	MethodID     int    `json:"methodId" bson:"method_id"`
	Statement    string `json:"statement" bson:"statement"`
	Sign         string `json:"sign" bson:"sign"`
}

// RefundNotification is the payload the gateway POSTs to the refund status
// URL for each item of a refund batch. Status 0 means completed, 1 rejected.
type RefundNotification struct {
	OrderID     int64        `json:"orderId" bson:"order_id"`
	SessionID   string       `json:"sessionId" bson:"session_id"`
	MerchantID  int          `json:"merchantId" bson:"merchant_id"`
	RequestID   string       `json:"requestId" bson:"request_id"`
	RefundsUUID string       `json:"refundsUuid" bson:"refunds_uuid"`
	Amount      int64        `json:"amount" bson:"amount"`
	Currency    string       `json:"currency" bson:"currency"`
	Timestamp   int64        `json:"timestamp" bson:"timestamp"`
	Status      RefundStatus `json:"status" bson:"status"`
	Sign        string       `json:"sign" bson:"sign"`
}

// PaymentOrder is what the host application submits to open a payment:
// the amount in decimal form plus buyer and presentation details.
type PaymentOrder struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    Currency        `json:"currency"`
	Description string          `json:"description"`
	Email       string          `json:"email"`
	Country     string          `json:"country,omitempty"`
	Language    string          `json:"language,omitempty"`
	MethodRefID string          `json:"methodRefId,omitempty"`
}
