package services

import (
	"context"

	"github.com/shopspring/decimal"

	"przelewy/entity"
)

// TriggerHandler receives lifecycle triggers for the host state machine.
// The service emits at most one trigger per processed event; ignoring
// redundant triggers for a terminal state is the handler's job.
type TriggerHandler func(ctx context.Context, event *entity.LifecycleEvent)

type Payments interface {
	Prepare(ctx context.Context, paymentID string, order *entity.PaymentOrder) (string, error)
	HandleNotification(ctx context.Context, paymentID string, data []byte) error
	HandleRefundNotification(ctx context.Context, paymentID string, data []byte) error
	FetchStatus(ctx context.Context, sessionID string) (*entity.StatusResult, error)
	Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (*entity.RefundResult, error)
}
