package internal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"przelewy/entity"
	"przelewy/services"
)

// fakeGateway is a scripted services.Gateway recording every call.
type fakeGateway struct {
	mu sync.Mutex

	registerToken string
	registerErr   error
	lastRegister  *entity.RegisterOrder

	verifyResult *entity.VerifyResult
	verifyErr    error
	verifyCalls  int
	lastVerify   struct {
		sessionID string
		orderID   int64
		amount    int64
	}

	txInfo    *entity.TransactionInfo
	txInfoErr error

	refundResult *entity.RefundResult
	refundErr    error
	lastRefund   []entity.RefundItem
}

func (f *fakeGateway) TestAccess(ctx context.Context) (bool, error) {
	return true, nil
}

func (f *fakeGateway) RegisterTransaction(ctx context.Context, order *entity.RegisterOrder) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRegister = order
	if f.registerErr != nil {
		return "", f.registerErr
	}
	return f.registerToken, nil
}

func (f *fakeGateway) VerifyTransaction(ctx context.Context, sessionID string, orderID int64, amount entity.Money) (*entity.VerifyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	f.lastVerify.sessionID = sessionID
	f.lastVerify.orderID = orderID
	units, err := amount.LowestUnit()
	if err != nil {
		return nil, err
	}
	f.lastVerify.amount = units
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	if f.verifyResult != nil {
		return f.verifyResult, nil
	}
	return &entity.VerifyResult{Status: "success"}, nil
}

func (f *fakeGateway) Refund(ctx context.Context, urlStatus string, items []entity.RefundItem) (*entity.RefundResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRefund = items
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	if f.refundResult != nil {
		return f.refundResult, nil
	}
	statuses := make([]entity.RefundItemStatus, 0, len(items))
	for _, item := range items {
		statuses = append(statuses, entity.RefundItemStatus{
			OrderID:   item.OrderID,
			SessionID: item.SessionID,
			Amount:    item.Amount,
			Accepted:  true,
		})
	}
	return &entity.RefundResult{RequestID: "req", RefundsUUID: "uuid", Items: statuses}, nil
}

func (f *fakeGateway) GetTransactionBySessionID(ctx context.Context, sessionID string) (*entity.TransactionInfo, error) {
	if f.txInfoErr != nil {
		return nil, f.txInfoErr
	}
	return f.txInfo, nil
}

func (f *fakeGateway) GetRefundsByOrderID(ctx context.Context, orderID int64) ([]entity.RefundInfo, error) {
	return nil, nil
}

func (f *fakeGateway) GetPaymentMethods(ctx context.Context, lang string, filter *entity.MethodFilter) ([]entity.PaymentMethod, error) {
	return nil, nil
}

func (f *fakeGateway) TransactionRedirectURL(token string) string {
	return "https://sandbox.przelewy24.pl/trnRequest/" + token
}

func (f *fakeGateway) VerifyCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verifyCalls
}

// memoryDatabase is an in-memory services.Database for ledger tests.
type memoryDatabase struct {
	mu       sync.Mutex
	payments map[string]entity.Payment
}

func newMemoryDatabase() *memoryDatabase {
	return &memoryDatabase{payments: make(map[string]entity.Payment)}
}

func (m *memoryDatabase) WriteLogMessage(data services.Data) error {
	return nil
}

func (m *memoryDatabase) SavePayment(ctx context.Context, payment *entity.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[payment.SessionID] = *payment
	return nil
}

func (m *memoryDatabase) GetPayment(ctx context.Context, sessionID string) (*entity.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payment, ok := m.payments[sessionID]
	if !ok {
		return nil, errors.New("payment not found")
	}
	return &payment, nil
}

func (m *memoryDatabase) UpdatePayment(ctx context.Context, payment *entity.Payment) error {
	return m.SavePayment(ctx, payment)
}

func (m *memoryDatabase) SaveNotification(ctx context.Context, notification *entity.Notification) error {
	return nil
}

func (m *memoryDatabase) SaveRefundNotification(ctx context.Context, notification *entity.RefundNotification) error {
	return nil
}

type triggerRecorder struct {
	mu     sync.Mutex
	events []*entity.LifecycleEvent
}

func (r *triggerRecorder) handler() services.TriggerHandler {
	return func(ctx context.Context, event *entity.LifecycleEvent) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, event)
	}
}

func (r *triggerRecorder) Events() []*entity.LifecycleEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*entity.LifecycleEvent(nil), r.events...)
}

func newTestPayments(gateway services.Gateway) (*Payments, *triggerRecorder) {
	conf := testConfig()
	conf.Merchant.URLReturn = "https://shop.example.com/payments/success/{payment_id}"
	conf.Merchant.URLStatus = "https://shop.example.com/payments/callback/{payment_id}"
	conf.Merchant.RefundURLStatus = "https://shop.example.com/payments/refund-callback/{payment_id}"

	payments := NewPayments(conf, gateway)
	recorder := &triggerRecorder{}
	payments.SetTriggerHandler(recorder.handler())
	return payments, recorder
}

func signedNotification(t *testing.T, sessionID string, orderID int64, amount int64) []byte {
	t.Helper()
	signer := NewSigner("test-crc-key")
	notification := &entity.Notification{
		MerchantID:   12345,
		PosID:        12345,
		SessionID:    sessionID,
		Amount:       amount,
		OriginAmount: amount,
		Currency:     "PLN",
		OrderID:      orderID,
		MethodID:     25,
		Statement:    "p24-" + sessionID,
	}
	sign, err := signer.NotificationSign(notification)
	require.NoError(t, err)
	notification.Sign = sign
	data, err := json.Marshal(notification)
	require.NoError(t, err)
	return data
}

func TestPrepare(t *testing.T) {
	gateway := &fakeGateway{registerToken: "abc"}
	payments, _ := newTestPayments(gateway)

	order := &entity.PaymentOrder{
		Amount:      decimal.RequireFromString("49.99"),
		Currency:    entity.PLN,
		Description: "Test order",
		Email:       "john@example.com",
	}
	redirectURL, err := payments.Prepare(context.Background(), "order-001", order)
	require.NoError(t, err)
	assert.Equal(t, "https://sandbox.przelewy24.pl/trnRequest/abc", redirectURL)

	require.NotNil(t, gateway.lastRegister)
	assert.Equal(t, "order-001", gateway.lastRegister.SessionID)
	assert.Equal(t, "https://shop.example.com/payments/success/order-001", gateway.lastRegister.URLReturn)
	assert.Equal(t, "https://shop.example.com/payments/callback/order-001", gateway.lastRegister.URLStatus)
}

func TestPrepare_SavesLedgerRecord(t *testing.T) {
	gateway := &fakeGateway{registerToken: "abc"}
	payments, _ := newTestPayments(gateway)
	database := newMemoryDatabase()
	payments.SetDatabase(database)

	order := &entity.PaymentOrder{
		Amount:      decimal.RequireFromString("49.99"),
		Currency:    entity.PLN,
		Description: "Test order",
		Email:       "john@example.com",
	}
	_, err := payments.Prepare(context.Background(), "order-001", order)
	require.NoError(t, err)

	payment, err := database.GetPayment(context.Background(), "order-001")
	require.NoError(t, err)
	assert.Equal(t, int64(4999), payment.Amount)
	assert.Equal(t, entity.PLN, payment.Currency)
	assert.Equal(t, "abc", payment.Token)
	assert.Equal(t, entity.StatusNoPayment, payment.Status)
}

func TestHandleNotification_VerifiesAndEmitsTrigger(t *testing.T) {
	gateway := &fakeGateway{}
	payments, recorder := newTestPayments(gateway)

	data := signedNotification(t, "order-001", 300000, 4999)
	err := payments.HandleNotification(context.Background(), "order-001", data)
	require.NoError(t, err)

	assert.Equal(t, 1, gateway.VerifyCalls())
	assert.Equal(t, "order-001", gateway.lastVerify.sessionID)
	assert.Equal(t, int64(300000), gateway.lastVerify.orderID)
	assert.Equal(t, int64(4999), gateway.lastVerify.amount)

	events := recorder.Events()
	require.Len(t, events, 1)
	assert.Equal(t, entity.TriggerConfirmPayment, events[0].Trigger)
	assert.Equal(t, "order-001", events[0].SessionID)
	assert.Equal(t, int64(300000), events[0].OrderID)
}

func TestHandleNotification_BadSignature(t *testing.T) {
	gateway := &fakeGateway{}
	payments, recorder := newTestPayments(gateway)

	var notification entity.Notification
	data := signedNotification(t, "order-001", 300000, 4999)
	require.NoError(t, json.Unmarshal(data, &notification))
	notification.Amount = 99999 // keep the old sign
	tampered, err := json.Marshal(&notification)
	require.NoError(t, err)

	err = payments.HandleNotification(context.Background(), "order-001", tampered)
	require.Error(t, err)
	assert.True(t, entity.IsKind(err, entity.ErrInvalidCallback))
	assert.Zero(t, gateway.VerifyCalls(), "no verify call after rejected signature")
	assert.Empty(t, recorder.Events(), "no trigger after rejected signature")
}

func TestHandleNotification_VerifyFails(t *testing.T) {
	gateway := &fakeGateway{
		verifyErr: entity.Errf(entity.ErrGatewayRejected, "verify", "http status 400"),
	}
	payments, recorder := newTestPayments(gateway)

	data := signedNotification(t, "order-001", 300000, 4999)
	err := payments.HandleNotification(context.Background(), "order-001", data)
	require.Error(t, err)
	assert.True(t, entity.IsKind(err, entity.ErrGatewayRejected))
	assert.Empty(t, recorder.Events(), "no trigger when verification fails")
}

func TestHandleNotification_AlreadyVerified(t *testing.T) {
	gateway := &fakeGateway{
		verifyResult: &entity.VerifyResult{AlreadyVerified: true},
	}
	payments, recorder := newTestPayments(gateway)

	data := signedNotification(t, "order-001", 300000, 4999)
	err := payments.HandleNotification(context.Background(), "order-001", data)
	require.NoError(t, err)

	events := recorder.Events()
	require.Len(t, events, 1)
	assert.Equal(t, entity.TriggerConfirmPayment, events[0].Trigger)
}

func TestHandleRefundNotification_Completed(t *testing.T) {
	gateway := &fakeGateway{}
	payments, recorder := newTestPayments(gateway)

	signer := NewSigner("test-crc-key")
	notification := &entity.RefundNotification{
		OrderID:     300000,
		SessionID:   "order-001",
		MerchantID:  12345,
		RequestID:   "req-1",
		RefundsUUID: "uuid-1",
		Amount:      4999,
		Currency:    "PLN",
		Timestamp:   1700000000,
		Status:      entity.RefundCompleted,
	}
	sign, err := signer.RefundNotificationSign(notification)
	require.NoError(t, err)
	notification.Sign = sign
	data, err := json.Marshal(notification)
	require.NoError(t, err)

	err = payments.HandleRefundNotification(context.Background(), "order-001", data)
	require.NoError(t, err)

	events := recorder.Events()
	require.Len(t, events, 1)
	assert.Equal(t, entity.TriggerConfirmRefund, events[0].Trigger)
	assert.Equal(t, int64(4999), events[0].Amount)
}

func TestHandleRefundNotification_Rejected(t *testing.T) {
	gateway := &fakeGateway{}
	payments, recorder := newTestPayments(gateway)

	signer := NewSigner("test-crc-key")
	notification := &entity.RefundNotification{
		OrderID:   300000,
		SessionID: "order-001",
		RequestID: "req-1",
		Amount:    4999,
		Currency:  "PLN",
		Status:    entity.RefundRejected,
	}
	sign, err := signer.RefundNotificationSign(notification)
	require.NoError(t, err)
	notification.Sign = sign
	data, err := json.Marshal(notification)
	require.NoError(t, err)

	err = payments.HandleRefundNotification(context.Background(), "order-001", data)
	require.NoError(t, err)
	assert.Empty(t, recorder.Events(), "rejected refund emits no trigger")
}

func TestFetchStatus_PaymentReturned(t *testing.T) {
	gateway := &fakeGateway{
		txInfo: &entity.TransactionInfo{
			OrderID:   300000,
			SessionID: "order-001",
			Status:    entity.StatusPaymentReturned,
			Amount:    4999,
			Currency:  "PLN",
		},
	}
	payments, _ := newTestPayments(gateway)

	result, err := payments.FetchStatus(context.Background(), "order-001")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPaymentReturned, result.Status)
	assert.Equal(t, entity.TriggerConfirmRefund, result.Trigger)
}

func TestFetchStatus_UnknownCode(t *testing.T) {
	gateway := &fakeGateway{
		txInfo: &entity.TransactionInfo{
			SessionID: "order-001",
			Status:    entity.TransactionStatus(7),
		},
	}
	payments, _ := newTestPayments(gateway)

	_, err := payments.FetchStatus(context.Background(), "order-001")
	require.Error(t, err)
	assert.True(t, entity.IsKind(err, entity.ErrUnmappedStatus))
}

func TestFetchStatus_NotFound(t *testing.T) {
	gateway := &fakeGateway{}
	payments, _ := newTestPayments(gateway)

	_, err := payments.FetchStatus(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, entity.IsKind(err, entity.ErrGatewayRejected))
}

func TestRefund_UsesLedgerOrderID(t *testing.T) {
	gateway := &fakeGateway{}
	payments, _ := newTestPayments(gateway)
	database := newMemoryDatabase()
	payments.SetDatabase(database)

	require.NoError(t, database.SavePayment(context.Background(), &entity.Payment{
		SessionID: "order-001",
		OrderID:   300000,
		Amount:    4999,
		Currency:  entity.PLN,
		Status:    entity.StatusPaymentMade,
		Verified:  true,
	}))

	result, err := payments.Refund(context.Background(), "order-001", decimal.RequireFromString("20.00"))
	require.NoError(t, err)
	assert.True(t, result.AllAccepted())

	require.Len(t, gateway.lastRefund, 1)
	assert.Equal(t, int64(300000), gateway.lastRefund[0].OrderID)
	assert.Equal(t, "order-001", gateway.lastRefund[0].SessionID)
	assert.Equal(t, int64(2000), gateway.lastRefund[0].Amount)
}

func TestRefund_ExceedsRefundable(t *testing.T) {
	gateway := &fakeGateway{}
	payments, _ := newTestPayments(gateway)
	database := newMemoryDatabase()
	payments.SetDatabase(database)

	require.NoError(t, database.SavePayment(context.Background(), &entity.Payment{
		SessionID:      "order-001",
		OrderID:        300000,
		Amount:         4999,
		RefundedAmount: 4000,
		Currency:       entity.PLN,
	}))

	_, err := payments.Refund(context.Background(), "order-001", decimal.RequireFromString("20.00"))
	require.Error(t, err)
	assert.True(t, entity.IsKind(err, entity.ErrValidation))
	assert.Nil(t, gateway.lastRefund)
}

func TestSessionLockExclusion(t *testing.T) {
	payments, _ := newTestPayments(&fakeGateway{})

	const workers = 32
	var active int32
	var violations int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock := payments.lockSession("order-001")
			if atomic.AddInt32(&active, 1) != 1 {
				atomic.AddInt32(&violations, 1)
			}
			atomic.AddInt32(&active, -1)
			payments.unlockSession("order-001", lock)
		}()
	}
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&violations), "two goroutines held the same session lock")
	payments.locksMu.Lock()
	_, held := payments.locks["order-001"]
	payments.locksMu.Unlock()
	assert.False(t, held, "lock entry released after the last holder")
}

func TestRefund_WithoutDatabase(t *testing.T) {
	gateway := &fakeGateway{}
	payments, _ := newTestPayments(gateway)

	_, err := payments.Refund(context.Background(), "order-001", decimal.RequireFromString("1.00"))
	require.Error(t, err)
	assert.True(t, entity.IsKind(err, entity.ErrValidation))
}
