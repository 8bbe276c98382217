package services

import (
	"context"

	"przelewy/entity"
)

// Gateway is the typed surface of the Przelewy24 REST API. Every network
// operation validates its input locally first and takes a context for
// cancellation; TransactionRedirectURL is pure.
type Gateway interface {
	TestAccess(ctx context.Context) (bool, error)
	RegisterTransaction(ctx context.Context, order *entity.RegisterOrder) (string, error)
	VerifyTransaction(ctx context.Context, sessionID string, orderID int64, amount entity.Money) (*entity.VerifyResult, error)
	Refund(ctx context.Context, urlStatus string, items []entity.RefundItem) (*entity.RefundResult, error)
	GetTransactionBySessionID(ctx context.Context, sessionID string) (*entity.TransactionInfo, error)
	GetRefundsByOrderID(ctx context.Context, orderID int64) ([]entity.RefundInfo, error)
	GetPaymentMethods(ctx context.Context, lang string, filter *entity.MethodFilter) ([]entity.PaymentMethod, error)
	TransactionRedirectURL(token string) string
}
