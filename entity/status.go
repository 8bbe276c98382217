package entity

// TransactionStatus is the integer status code reported by
// GET /api/v1/transaction/by/sessionId.
type TransactionStatus int

const (
	StatusNoPayment       TransactionStatus = 0
	StatusAdvancePayment  TransactionStatus = 1
	StatusPaymentMade     TransactionStatus = 2
	StatusPaymentReturned TransactionStatus = 3
)

// RefundStatus is the binary outcome reported in refund notifications.
type RefundStatus int

const (
	RefundCompleted RefundStatus = 0
	RefundRejected  RefundStatus = 1
)

// Trigger is a lifecycle signal for the host state machine. The mapper is
// stateless: it computes the trigger for the reported status, deduplication
// across deliveries belongs to the consumer.
type Trigger string

const (
	TriggerNone            Trigger = "none"
	TriggerConfirmPrepared Trigger = "confirm_prepared"
	TriggerConfirmPayment  Trigger = "confirm_payment"
	TriggerConfirmRefund   Trigger = "confirm_refund"
)

// Trigger maps a transaction status onto its lifecycle trigger. The mapping
// is total over the known codes; anything else is an error, never silently
// mapped to TriggerNone.
func (s TransactionStatus) Trigger() (Trigger, error) {
	switch s {
	case StatusNoPayment:
		return TriggerNone, nil
	case StatusAdvancePayment:
		return TriggerConfirmPrepared, nil
	case StatusPaymentMade:
		return TriggerConfirmPayment, nil
	case StatusPaymentReturned:
		return TriggerConfirmRefund, nil
	}
	return "", Errf(ErrUnmappedStatus, "status", "unknown transaction status %d", s)
}

// LifecycleEvent is delivered to the registered trigger handler when a
// payment or refund is confirmed.
type LifecycleEvent struct {
	SessionID string   `json:"session_id"`
	OrderID   int64    `json:"order_id"`
	Trigger   Trigger  `json:"trigger"`
	Amount    int64    `json:"amount"`
	Currency  Currency `json:"currency"`
}
