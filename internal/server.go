package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/shopspring/decimal"

	"przelewy/config"
	"przelewy/entity"
	"przelewy/services"
)

const (
	payPayment     = "/pay/:payment_id"
	paymentStatus  = "/status/:payment_id"
	refundPayment  = "/refund/:payment_id"
	paymentNotify  = "/notify/payment/:payment_id"
	refundNotify   = "/notify/refund/:payment_id"
	paymentMethods = "/methods/:lang"
	healthCheck    = "/health"
)

type contextKey string

const requestIDKey contextKey = "requestID"

// withRequestID attaches a request id for log correlation.
func withRequestID(ctx context.Context) context.Context {
	if _, ok := ctx.Value(requestIDKey).(string); ok {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, uuid.NewString())
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	payments   services.Payments
	gateway    services.Gateway
	logger     services.LogHandler
}

func NewServer(conf *config.Config) *Server {

	server := Server{
		conf: conf,
	}

	// register itself as a router for httpServer handler
	router := httprouter.New()
	server.Register(router)
	server.httpServer = &http.Server{
		Handler: router,
	}

	return &server
}

func (s *Server) Register(router *httprouter.Router) {
	router.POST(payPayment, s.payPayment)
	router.GET(paymentStatus, s.paymentStatus)
	router.POST(refundPayment, s.refundPayment)
	router.POST(paymentNotify, s.paymentNotify)
	router.POST(refundNotify, s.refundNotify)
	router.GET(paymentMethods, s.paymentMethods)
	router.GET(healthCheck, s.healthCheck)
}

func (s *Server) SetPaymentsService(payments services.Payments) {
	s.payments = payments
}

func (s *Server) SetGateway(gateway services.Gateway) {
	s.gateway = gateway
}

func (s *Server) SetLogger(logger services.LogHandler) {
	s.logger = logger
}

func (s *Server) Start() error {
	if s.conf == nil {
		return fmt.Errorf("configuration not loaded")
	}

	serverAddress := fmt.Sprintf("%s:%s", s.conf.Listen.BindIP, s.conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	if s.conf.Listen.TLS {
		s.logger.Info(fmt.Sprintf("starting https TLS on %s", serverAddress))
		err = s.httpServer.ServeTLS(listener, s.conf.Listen.CertFile, s.conf.Listen.KeyFile)
	} else {
		s.logger.Info(fmt.Sprintf("starting http on %s", serverAddress))
		err = s.httpServer.Serve(listener)
	}

	return err
}

// payPayment registers a payment and returns the buyer redirect URL.
func (s *Server) payPayment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := withRequestID(r.Context())
	reqID := requestID(ctx)

	paymentID := ps.ByName("payment_id")
	if paymentID == "" {
		s.logger.Warn(fmt.Sprintf("[%s] empty payment id", reqID))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] pay: read request body", reqID), err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var order entity.PaymentOrder
	if err = json.Unmarshal(body, &order); err != nil {
		s.logger.Error(fmt.Sprintf("[%s] pay: decode request body", reqID), err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.logger.Info(fmt.Sprintf("[%s] processing request: pay %s, amount %s %s", reqID, paymentID, order.Amount, order.Currency))
	redirectURL, err := s.payments.Prepare(ctx, paymentID, &order)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] pay %s", reqID, paymentID), err)
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, map[string]string{"redirect_url": redirectURL})
}

// paymentStatus is the pull flow: query the gateway and report the mapped
// lifecycle trigger.
func (s *Server) paymentStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := withRequestID(r.Context())
	reqID := requestID(ctx)

	paymentID := ps.ByName("payment_id")
	if paymentID == "" {
		s.logger.Warn(fmt.Sprintf("[%s] empty payment id", reqID))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	result, err := s.payments.FetchStatus(ctx, paymentID)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] status %s", reqID, paymentID), err)
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, result)
}

func (s *Server) refundPayment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := withRequestID(r.Context())
	reqID := requestID(ctx)

	paymentID := ps.ByName("payment_id")
	if paymentID == "" {
		s.logger.Warn(fmt.Sprintf("[%s] refund: empty payment id", reqID))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] refund: read request body", reqID), err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var request struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err = json.Unmarshal(body, &request); err != nil {
		s.logger.Error(fmt.Sprintf("[%s] refund: decode request body", reqID), err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.logger.Info(fmt.Sprintf("[%s] processing request: refund %s, amount %s", reqID, paymentID, request.Amount))
	result, err := s.payments.Refund(ctx, paymentID, request.Amount)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] refund %s", reqID, paymentID), err)
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, result)
}

// paymentNotify receives the gateway's payment notification. A rejected
// signature answers 400 so the gateway keeps retrying delivery.
func (s *Server) paymentNotify(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := withRequestID(r.Context())
	reqID := requestID(ctx)

	paymentID := ps.ByName("payment_id")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] payment notify: get body", reqID), err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if err = s.payments.HandleNotification(ctx, paymentID, body); err != nil {
		s.logger.Error(fmt.Sprintf("[%s] payment notify %s", reqID, paymentID), err)
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) refundNotify(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := withRequestID(r.Context())
	reqID := requestID(ctx)

	paymentID := ps.ByName("payment_id")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] refund notify: get body", reqID), err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if err = s.payments.HandleRefundNotification(ctx, paymentID, body); err != nil {
		s.logger.Error(fmt.Sprintf("[%s] refund notify %s", reqID, paymentID), err)
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) paymentMethods(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := withRequestID(r.Context())
	reqID := requestID(ctx)

	lang := ps.ByName("lang")
	var filter *entity.MethodFilter
	query := r.URL.Query()
	if query.Get("amount") != "" || query.Get("currency") != "" {
		filter = &entity.MethodFilter{
			Currency: entity.Currency(query.Get("currency")),
		}
		if raw := query.Get("amount"); raw != "" {
			amount, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				s.logger.Warn(fmt.Sprintf("[%s] methods: invalid amount %s", reqID, raw))
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			filter.Amount = amount
		}
	}

	methods, err := s.gateway.GetPaymentMethods(ctx, lang, filter)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] payment methods %s", reqID, lang), err)
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, methods)
}

// healthCheck verifies the gateway accepts the configured credentials.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := withRequestID(r.Context())
	reqID := requestID(ctx)

	ok, err := s.gateway.TestAccess(ctx)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] health check", reqID), err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, map[string]bool{"access": ok})
}

func (s *Server) writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write response", err)
	}
}

// writeError maps error kinds onto HTTP status codes: local validation and
// callback rejections are the caller's fault, everything else is ours.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var typed *entity.Error
	if errors.As(err, &typed) {
		switch typed.Kind {
		case entity.ErrValidation, entity.ErrInvalidCallback:
			status = http.StatusBadRequest
		case entity.ErrGatewayRejected, entity.ErrUnmappedStatus:
			status = http.StatusBadGateway
		case entity.ErrTransport:
			status = http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
