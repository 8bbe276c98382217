package entity

import "time"

// RegisterOrder is the caller-side input for transaction registration.
// SessionID must be unique per payment attempt.
type RegisterOrder struct {
	SessionID     string
	Amount        Money
	Description   string
	Email         string
	URLReturn     string
	URLStatus     string
	Country       string
	Language      string
	TimeLimit     int
	Channel       int
	WaitForResult bool
	TransferLabel string
	MethodRefID   string
}

// RegisterRequest is the wire body for POST /api/v1/transaction/register.
type RegisterRequest struct {
	MerchantID    int    `json:"merchantId"`
	PosID         int    `json:"posId"`
	SessionID     string `json:"sessionId"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Description   string `json:"description"`
	Email         string `json:"email"`
	Country       string `json:"country,omitempty"`
	Language      string `json:"language,omitempty"`
	URLReturn     string `json:"urlReturn"`
	URLStatus     string `json:"urlStatus"`
	TimeLimit     int    `json:"timeLimit,omitempty"`
	Channel       int    `json:"channel,omitempty"`
	WaitForResult bool   `json:"waitForResult,omitempty"`
	TransferLabel string `json:"transferLabel,omitempty"`
	MethodRefID   string `json:"methodRefId,omitempty"`
	Sign          string `json:"sign"`
}

// RegisterResponse is the body returned by a successful registration.
type RegisterResponse struct {
	Data struct {
		Token string `json:"token"`
	} `json:"data"`
	ResponseCode int `json:"responseCode"`
}

// VerifyRequest is the wire body for PUT /api/v1/transaction/verify.
type VerifyRequest struct {
	MerchantID int    `json:"merchantId"`
	PosID      int    `json:"posId"`
	SessionID  string `json:"sessionId"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	OrderID    int64  `json:"orderId"`
	Sign       string `json:"sign"`
}

// VerifyResponse is the body returned by the verify endpoint.
type VerifyResponse struct {
	Data struct {
		Status string `json:"status"`
	} `json:"data"`
	ResponseCode int `json:"responseCode"`
}

// VerifyResult is the caller-visible outcome of a verification call.
// AlreadyVerified marks the gateway's repeat-verification rejection, which
// is not a failure for the caller.
type VerifyResult struct {
	Status          string
	AlreadyVerified bool
}

// TransactionInfo is the record returned by
// GET /api/v1/transaction/by/sessionId/{sessionId}.
type TransactionInfo struct {
	Statement     string            `json:"statement"`
	OrderID       int64             `json:"orderId"`
	SessionID     string            `json:"sessionId"`
	Status        TransactionStatus `json:"status"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Date          string            `json:"date"`
	DateOfTrn     string            `json:"dateOfTransaction"`
	ClientEmail   string            `json:"clientEmail"`
	ClientName    string            `json:"clientName"`
	PaymentMethod int               `json:"paymentMethod"`
	Description   string            `json:"description"`
}

// TransactionInfoResponse wraps TransactionInfo in the gateway envelope.
type TransactionInfoResponse struct {
	Data         TransactionInfo `json:"data"`
	ResponseCode int             `json:"responseCode"`
}

// PaymentMethod is one entry from GET /api/v1/payment/methods/{lang}.
type PaymentMethod struct {
	Name      string `json:"name"`
	ID        int    `json:"id"`
	Status    bool   `json:"status"`
	ImgURL    string `json:"imgUrl"`
	MobileImg string `json:"mobileImgUrl"`
}

// PaymentMethodsResponse wraps the method list in the gateway envelope.
type PaymentMethodsResponse struct {
	Data         []PaymentMethod `json:"data"`
	ResponseCode int             `json:"responseCode"`
}

// MethodFilter narrows the payment-method listing. Amount is in minor
// units. Each field is optional on its own; a zero value omits the
// corresponding query parameter.
type MethodFilter struct {
	Amount   int64
	Currency Currency
}

// TestAccessResponse is the body of GET /api/v1/testAccess.
type TestAccessResponse struct {
	Data bool `json:"data"`
}

// Payment is the host-side ledger record kept for a payment attempt. The
// session id doubles as the host payment id; the gateway order id arrives
// with the first notification and is required for refunds.
type Payment struct {
	SessionID      string            `json:"session_id" bson:"session_id"`
	OrderID        int64             `json:"order_id" bson:"order_id"`
	Token          string            `json:"token" bson:"token"`
	Amount         int64             `json:"amount" bson:"amount"`
	Currency       Currency          `json:"currency" bson:"currency"`
	Description    string            `json:"description" bson:"description"`
	Email          string            `json:"email" bson:"email"`
	Status         TransactionStatus `json:"status" bson:"status"`
	Verified       bool              `json:"verified" bson:"verified"`
	RefundedAmount int64             `json:"refunded_amount" bson:"refunded_amount"`
	LastError      string            `json:"last_error" bson:"last_error"`
	TimeCreated    time.Time         `json:"time_created" bson:"time_created"`
	TimeUpdated    time.Time         `json:"time_updated" bson:"time_updated"`
}

// StatusResult is the pull-path answer: the reported status and its trigger.
type StatusResult struct {
	SessionID string            `json:"session_id"`
	OrderID   int64             `json:"order_id"`
	Status    TransactionStatus `json:"status"`
	Trigger   Trigger           `json:"trigger"`
}
