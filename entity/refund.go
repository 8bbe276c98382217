package entity

// RefundItem is one line of a batch refund request. Amount is in minor
// units; RefundRef is the caller-assigned identifier for the item.
type RefundItem struct {
	OrderID   int64  `json:"orderId"`
	SessionID string `json:"sessionId"`
	Amount    int64  `json:"amount"`
	RefundRef string `json:"description,omitempty"`
}

// RefundRequest is the wire body for POST /api/v1/transaction/refund.
// The gateway processes the whole batch in one call.
type RefundRequest struct {
	RequestID   string       `json:"requestId"`
	RefundsUUID string       `json:"refundsUuid"`
	URLStatus   string       `json:"urlStatus,omitempty"`
	Refunds     []RefundItem `json:"refunds"`
}

// RefundItemStatus is the per-item outcome reported in the refund response.
type RefundItemStatus struct {
	OrderID   int64  `json:"orderId"`
	SessionID string `json:"sessionId"`
	Amount    int64  `json:"amount"`
	RefundRef string `json:"description"`
	Accepted  bool   `json:"status"`
	Message   string `json:"message,omitempty"`
}

// RefundResponse is the gateway envelope for a refund submission.
type RefundResponse struct {
	Data         []RefundItemStatus `json:"data"`
	ResponseCode int                `json:"responseCode"`
}

// RefundResult carries per-item outcomes back to the caller. A batch with
// some rejected items is not collapsed into a single failure.
type RefundResult struct {
	RequestID   string             `json:"request_id"`
	RefundsUUID string             `json:"refunds_uuid"`
	Items       []RefundItemStatus `json:"items"`
}

// AllAccepted reports whether every item of the batch was accepted.
func (r *RefundResult) AllAccepted() bool {
	for _, item := range r.Items {
		if !item.Accepted {
			return false
		}
	}
	return true
}

// RefundInfo is one record from GET /api/v1/refund/by/orderId/{orderId}.
type RefundInfo struct {
	BatchID     int64  `json:"batchId"`
	RequestID   string `json:"requestId"`
	RefundsUUID string `json:"refundsUuid"`
	OrderID     int64  `json:"orderId"`
	SessionID   string `json:"sessionId"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Status      int    `json:"status"`
	Date        string `json:"date"`
}

// RefundInfoResponse wraps the refund records in the gateway envelope.
type RefundInfoResponse struct {
	Data         []RefundInfo `json:"data"`
	ResponseCode int          `json:"responseCode"`
}
