package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"przelewy/config"
	"przelewy/entity"
	"przelewy/services"
)

// Payments drives the payment lifecycle against the gateway: registration
// with buyer redirect, the push flow (notification -> signature check ->
// mandatory verify -> trigger), the pull flow (status query -> trigger) and
// refunds. It keeps no payment state of its own; the optional database is a
// host-side ledger, and lifecycle triggers go to the registered handler.
type Payments struct {
	conf     *config.Config
	gateway  services.Gateway
	signer   *Signer
	database services.Database
	logger   services.LogHandler
	trigger  services.TriggerHandler
	locksMu  sync.Mutex
	locks    map[string]*sessionLock
}

func NewPayments(conf *config.Config, gateway services.Gateway) *Payments {
	return &Payments{
		conf:    conf,
		gateway: gateway,
		signer:  NewSigner(conf.Merchant.CrcKey),
		logger:  NewLogger("payments", conf.IsDebug, nil),
		locks:   make(map[string]*sessionLock),
	}
}

func (p *Payments) SetDatabase(database services.Database) {
	p.database = database
}

func (p *Payments) SetLogger(logger services.LogHandler) {
	p.logger = logger
}

// SetTriggerHandler registers the host callback receiving lifecycle
// triggers. Without a handler, triggers are only logged.
func (p *Payments) SetTriggerHandler(handler services.TriggerHandler) {
	p.trigger = handler
}

// sessionLock is a reference-counted per-session mutex. The count keeps
// the map entry alive while waiters exist, so two holders can never end up
// on different mutexes for the same session.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// lockSession acquires the lock for a single payment session so ledger
// read-modify-write stays consistent. Different sessions proceed in
// parallel.
func (p *Payments) lockSession(sessionID string) *sessionLock {
	p.locksMu.Lock()
	lock, ok := p.locks[sessionID]
	if !ok {
		lock = &sessionLock{}
		p.locks[sessionID] = lock
	}
	lock.refs++
	p.locksMu.Unlock()
	lock.mu.Lock()
	return lock
}

func (p *Payments) unlockSession(sessionID string, lock *sessionLock) {
	lock.mu.Unlock()
	p.locksMu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(p.locks, sessionID)
	}
	p.locksMu.Unlock()
}

// Prepare registers a payment with the gateway and returns the URL the
// buyer must be redirected to. The payment id becomes the gateway session
// id and is substituted into the configured URL templates.
func (p *Payments) Prepare(ctx context.Context, paymentID string, order *entity.PaymentOrder) (string, error) {
	if paymentID == "" {
		return "", entity.Errf(entity.ErrValidation, "prepare", "missing payment id")
	}
	if order == nil {
		return "", entity.Errf(entity.ErrValidation, "prepare", "missing payment order")
	}

	lock := p.lockSession(paymentID)
	defer p.unlockSession(paymentID, lock)

	money := entity.Money{Amount: order.Amount, Currency: order.Currency}
	amount, err := money.LowestUnit()
	if err != nil {
		return "", err
	}

	register := &entity.RegisterOrder{
		SessionID:   paymentID,
		Amount:      money,
		Description: order.Description,
		Email:       order.Email,
		Country:     order.Country,
		Language:    order.Language,
		MethodRefID: order.MethodRefID,
		URLReturn:   config.ResolveURL(p.conf.Merchant.URLReturn, paymentID),
		URLStatus:   config.ResolveURL(p.conf.Merchant.URLStatus, paymentID),
	}

	token, err := p.gateway.RegisterTransaction(ctx, register)
	if err != nil {
		p.logger.Error(fmt.Sprintf("register payment %s", paymentID), err)
		return "", err
	}
	p.logger.Info(fmt.Sprintf("payment %s registered, token %s", paymentID, secret(token)))

	if p.database != nil {
		now := time.Now()
		payment := &entity.Payment{
			SessionID:   paymentID,
			Token:       token,
			Amount:      amount,
			Currency:    order.Currency,
			Description: order.Description,
			Email:       order.Email,
			Status:      entity.StatusNoPayment,
			TimeCreated: now,
			TimeUpdated: now,
		}
		if err := p.database.SavePayment(ctx, payment); err != nil {
			p.logger.Error("save payment", err)
		}
	}

	return p.gateway.TransactionRedirectURL(token), nil
}

// HandleNotification processes a payment notification from the gateway.
// The callback signature is checked first; on mismatch the notification is
// rejected and no verify call is made. On success the mandatory verify call
// settles the payment and exactly one confirm-payment trigger is emitted.
func (p *Payments) HandleNotification(ctx context.Context, paymentID string, data []byte) error {
	var notification entity.Notification
	if err := json.Unmarshal(data, &notification); err != nil {
		p.logger.Warn(fmt.Sprintf("notification for %s: %s", paymentID, string(data)))
		return entity.WrapErr(entity.ErrValidation, "notification", "parse body", err)
	}

	if err := p.signer.CheckNotification(&notification); err != nil {
		p.logger.Error(fmt.Sprintf("notification for %s rejected", paymentID), err)
		return err
	}
	p.logger.Info(fmt.Sprintf("notification: session %s; order %d; amount %d %s; method %d",
		notification.SessionID, notification.OrderID, notification.Amount, notification.Currency, notification.MethodID))

	if p.database != nil {
		if err := p.database.SaveNotification(ctx, &notification); err != nil {
			p.logger.Error("save notification", err)
		}
	}

	lock := p.lockSession(notification.SessionID)
	defer p.unlockSession(notification.SessionID, lock)

	money := entity.MoneyFromLowestUnit(notification.Amount, entity.Currency(notification.Currency))
	result, err := p.gateway.VerifyTransaction(ctx, notification.SessionID, notification.OrderID, money)
	if err != nil {
		p.logger.Error(fmt.Sprintf("verify payment %s", notification.SessionID), err)
		p.recordError(ctx, notification.SessionID, err)
		return err
	}
	if result.AlreadyVerified {
		p.logger.Warn(fmt.Sprintf("payment %s already verified by gateway", notification.SessionID))
	}

	p.updateLedger(ctx, notification.SessionID, func(payment *entity.Payment) {
		payment.OrderID = notification.OrderID
		payment.Status = entity.StatusPaymentMade
		payment.Verified = true
		payment.LastError = ""
	})

	p.emit(ctx, &entity.LifecycleEvent{
		SessionID: notification.SessionID,
		OrderID:   notification.OrderID,
		Trigger:   entity.TriggerConfirmPayment,
		Amount:    notification.Amount,
		Currency:  entity.Currency(notification.Currency),
	})
	return nil
}

// HandleRefundNotification processes a per-item refund outcome pushed by
// the gateway. A rejected refund is recorded but emits no trigger.
func (p *Payments) HandleRefundNotification(ctx context.Context, paymentID string, data []byte) error {
	var notification entity.RefundNotification
	if err := json.Unmarshal(data, &notification); err != nil {
		p.logger.Warn(fmt.Sprintf("refund notification for %s: %s", paymentID, string(data)))
		return entity.WrapErr(entity.ErrValidation, "refund notification", "parse body", err)
	}

	if err := p.signer.CheckRefundNotification(&notification); err != nil {
		p.logger.Error(fmt.Sprintf("refund notification for %s rejected", paymentID), err)
		return err
	}

	if p.database != nil {
		if err := p.database.SaveRefundNotification(ctx, &notification); err != nil {
			p.logger.Error("save refund notification", err)
		}
	}

	lock := p.lockSession(notification.SessionID)
	defer p.unlockSession(notification.SessionID, lock)

	if notification.Status == entity.RefundRejected {
		p.logger.Warn(fmt.Sprintf("refund rejected: session %s; order %d; amount %d",
			notification.SessionID, notification.OrderID, notification.Amount))
		p.updateLedger(ctx, notification.SessionID, func(payment *entity.Payment) {
			payment.LastError = fmt.Sprintf("refund %s rejected", notification.RequestID)
		})
		return nil
	}

	p.logger.Info(fmt.Sprintf("refund completed: session %s; order %d; amount %d %s",
		notification.SessionID, notification.OrderID, notification.Amount, notification.Currency))
	p.updateLedger(ctx, notification.SessionID, func(payment *entity.Payment) {
		payment.RefundedAmount += notification.Amount
		payment.Status = entity.StatusPaymentReturned
	})

	p.emit(ctx, &entity.LifecycleEvent{
		SessionID: notification.SessionID,
		OrderID:   notification.OrderID,
		Trigger:   entity.TriggerConfirmRefund,
		Amount:    notification.Amount,
		Currency:  entity.Currency(notification.Currency),
	})
	return nil
}

// FetchStatus is the pull flow: query the gateway for the transaction and
// map its status code onto a lifecycle trigger. The mapping is total over
// the known codes; an unknown code is an error, never TriggerNone.
func (p *Payments) FetchStatus(ctx context.Context, sessionID string) (*entity.StatusResult, error) {
	info, err := p.gateway.GetTransactionBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, entity.Errf(entity.ErrGatewayRejected, "fetch status", "transaction %s not found", sessionID)
	}

	trigger, err := info.Status.Trigger()
	if err != nil {
		p.logger.Error(fmt.Sprintf("status of payment %s", sessionID), err)
		return nil, err
	}
	p.logger.Debug(fmt.Sprintf("payment %s: status %d; trigger %s", sessionID, info.Status, trigger))

	p.updateLedger(ctx, sessionID, func(payment *entity.Payment) {
		payment.OrderID = info.OrderID
		payment.Status = info.Status
	})

	return &entity.StatusResult{
		SessionID: sessionID,
		OrderID:   info.OrderID,
		Status:    info.Status,
		Trigger:   trigger,
	}, nil
}

// Refund submits a refund for a settled payment. The gateway order id is
// recovered from the ledger, so refunds require the database.
func (p *Payments) Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (*entity.RefundResult, error) {
	if p.database == nil {
		return nil, entity.Errf(entity.ErrValidation, "refund", "database not set")
	}

	lock := p.lockSession(paymentID)
	defer p.unlockSession(paymentID, lock)

	payment, err := p.database.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, entity.WrapErr(entity.ErrValidation, "refund", fmt.Sprintf("unknown payment %s", paymentID), err)
	}
	if payment.OrderID == 0 {
		return nil, entity.Errf(entity.ErrValidation, "refund", "payment %s has no gateway order id", paymentID)
	}

	money := entity.Money{Amount: amount, Currency: payment.Currency}
	amountInt, err := money.LowestUnit()
	if err != nil {
		return nil, err
	}
	if amountInt > payment.Amount-payment.RefundedAmount {
		return nil, entity.Errf(entity.ErrValidation, "refund",
			"refundable amount %d is less than requested %d", payment.Amount-payment.RefundedAmount, amountInt)
	}

	items := []entity.RefundItem{{
		OrderID:   payment.OrderID,
		SessionID: payment.SessionID,
		Amount:    amountInt,
		RefundRef: uuid.NewString(),
	}}
	urlStatus := config.ResolveURL(p.conf.Merchant.RefundURLStatus, paymentID)

	result, err := p.gateway.Refund(ctx, urlStatus, items)
	if err != nil {
		p.logger.Error(fmt.Sprintf("refund payment %s", paymentID), err)
		return nil, err
	}
	for _, item := range result.Items {
		if !item.Accepted {
			p.logger.Warn(fmt.Sprintf("refund item not accepted: session %s; order %d; %s",
				item.SessionID, item.OrderID, item.Message))
		}
	}
	p.logger.Info(fmt.Sprintf("refund submitted: payment %s; amount %d; request %s",
		paymentID, amountInt, result.RequestID))
	return result, nil
}

// emit delivers a lifecycle trigger to the registered handler.
func (p *Payments) emit(ctx context.Context, event *entity.LifecycleEvent) {
	if p.trigger == nil {
		p.logger.Warn(fmt.Sprintf("no trigger handler: dropping %s for %s", event.Trigger, event.SessionID))
		return
	}
	p.trigger(ctx, event)
}

// updateLedger applies a mutation to the stored payment record, when a
// database is attached. Ledger failures are logged, never fatal for the
// payment flow.
func (p *Payments) updateLedger(ctx context.Context, sessionID string, mutate func(payment *entity.Payment)) {
	if p.database == nil {
		return
	}
	payment, err := p.database.GetPayment(ctx, sessionID)
	if err != nil {
		p.logger.Error(fmt.Sprintf("get payment %s", sessionID), err)
		return
	}
	mutate(payment)
	payment.TimeUpdated = time.Now()
	if err := p.database.UpdatePayment(ctx, payment); err != nil {
		p.logger.Error(fmt.Sprintf("update payment %s", sessionID), err)
	}
}

func (p *Payments) recordError(ctx context.Context, sessionID string, cause error) {
	p.updateLedger(ctx, sessionID, func(payment *entity.Payment) {
		payment.LastError = cause.Error()
	})
}

func secret(some string) string {
	if len(some) > 5 {
		return fmt.Sprintf("%s***", some[0:5])
	}
	if some == "" {
		return "?"
	}
	return "***"
}
