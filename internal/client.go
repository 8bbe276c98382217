package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"przelewy/config"
	"przelewy/entity"
)

const (
	SandboxURL    = "https://sandbox.przelewy24.pl"
	ProductionURL = "https://secure.przelewy24.pl"
)

const (
	pathTestAccess     = "/api/v1/testAccess"
	pathRegister       = "/api/v1/transaction/register"
	pathVerify         = "/api/v1/transaction/verify"
	pathRefund         = "/api/v1/transaction/refund"
	pathTransactionBy  = "/api/v1/transaction/by/sessionId/"
	pathRefundByOrder  = "/api/v1/refund/by/orderId/"
	pathPaymentMethods = "/api/v1/payment/methods/"
	pathRedirect       = "/trnRequest/"
)

// Client talks to the Przelewy24 REST API. Every call authenticates with
// the POS id and API key over HTTP Basic Auth; request bodies carrying
// signed fields are signed with the CRC key. Operations share no mutable
// state, so concurrent calls across sessions are safe.
type Client struct {
	merchantID int
	posID      int
	apiKey     string
	baseURL    string
	signer     *Signer
	httpClient *http.Client
}

// NewClient creates a gateway client with a pooled HTTP transport.
// The sandbox flag selects the base URL; credentials are fixed for the
// client's lifetime.
func NewClient(conf *config.Config) *Client {
	baseURL := ProductionURL
	if conf.Merchant.Sandbox {
		baseURL = SandboxURL
	}
	return &Client{
		merchantID: conf.Merchant.MerchantID,
		posID:      conf.Merchant.PosID,
		apiKey:     conf.Merchant.ApiKey,
		baseURL:    baseURL,
		signer:     NewSigner(conf.Merchant.CrcKey),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DisableKeepAlives:   false,
			},
		},
	}
}

// TestAccess checks the API credentials. An authentication rejection is a
// false result, not an error; only transport failures are errors.
func (c *Client) TestAccess(ctx context.Context) (bool, error) {
	status, body, err := c.do(ctx, http.MethodGet, pathTestAccess, nil, nil)
	if err != nil {
		return false, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return false, nil
	}
	if status != http.StatusOK {
		return false, gatewayRejected("test access", status, body)
	}
	var response entity.TestAccessResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return false, entity.WrapErr(entity.ErrGatewayRejected, "test access", "parse response", err)
	}
	return response.Data, nil
}

// RegisterTransaction registers a payment attempt and returns the token
// used to build the buyer redirect URL.
func (c *Client) RegisterTransaction(ctx context.Context, order *entity.RegisterOrder) (string, error) {
	if order.SessionID == "" {
		return "", entity.Errf(entity.ErrValidation, "register", "missing session id")
	}
	amount, err := order.Amount.LowestUnit()
	if err != nil {
		return "", err
	}
	if amount <= 0 {
		return "", entity.Errf(entity.ErrValidation, "register", "amount must be positive, got %s", order.Amount.Amount)
	}
	if order.Email == "" {
		return "", entity.Errf(entity.ErrValidation, "register", "missing buyer email")
	}

	currency := string(order.Amount.Currency)
	sign, err := c.signer.RegisterSign(order.SessionID, c.merchantID, amount, currency)
	if err != nil {
		return "", entity.WrapErr(entity.ErrValidation, "register", "compute sign", err)
	}

	request := entity.RegisterRequest{
		MerchantID:    c.merchantID,
		PosID:         c.posID,
		SessionID:     order.SessionID,
		Amount:        amount,
		Currency:      currency,
		Description:   order.Description,
		Email:         order.Email,
		Country:       order.Country,
		Language:      order.Language,
		URLReturn:     order.URLReturn,
		URLStatus:     order.URLStatus,
		TimeLimit:     order.TimeLimit,
		Channel:       order.Channel,
		WaitForResult: order.WaitForResult,
		TransferLabel: order.TransferLabel,
		MethodRefID:   order.MethodRefID,
		Sign:          sign,
	}

	status, body, err := c.do(ctx, http.MethodPost, pathRegister, request, nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return "", gatewayRejected("register", status, body)
	}
	var response entity.RegisterResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", entity.WrapErr(entity.ErrGatewayRejected, "register", "parse response", err)
	}
	if response.Data.Token == "" {
		return "", entity.Errf(entity.ErrGatewayRejected, "register", "empty token in response")
	}
	return response.Data.Token, nil
}

// VerifyTransaction confirms a notified payment with the gateway. This call
// is mandatory after every notification: without it the funds stay as an
// advance payment. A repeat verification is reported on the result, not as
// an error, so redundant deliveries stay harmless.
func (c *Client) VerifyTransaction(ctx context.Context, sessionID string, orderID int64, amount entity.Money) (*entity.VerifyResult, error) {
	if sessionID == "" {
		return nil, entity.Errf(entity.ErrValidation, "verify", "missing session id")
	}
	amountInt, err := amount.LowestUnit()
	if err != nil {
		return nil, err
	}

	currency := string(amount.Currency)
	sign, err := c.signer.VerifySign(sessionID, orderID, amountInt, currency)
	if err != nil {
		return nil, entity.WrapErr(entity.ErrValidation, "verify", "compute sign", err)
	}

	request := entity.VerifyRequest{
		MerchantID: c.merchantID,
		PosID:      c.posID,
		SessionID:  sessionID,
		Amount:     amountInt,
		Currency:   currency,
		OrderID:    orderID,
		Sign:       sign,
	}

	status, body, err := c.do(ctx, http.MethodPut, pathVerify, request, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		rejected := gatewayRejected("verify", status, body)
		if rejected.Gateway != nil && isAlreadyVerified(rejected.Gateway.Message) {
			return &entity.VerifyResult{AlreadyVerified: true}, nil
		}
		return nil, rejected
	}
	var response entity.VerifyResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, entity.WrapErr(entity.ErrGatewayRejected, "verify", "parse response", err)
	}
	return &entity.VerifyResult{Status: response.Data.Status}, nil
}

// Refund submits a batch of refund items in one request and returns the
// outcome of every item. A partially rejected batch is not an error.
func (c *Client) Refund(ctx context.Context, urlStatus string, items []entity.RefundItem) (*entity.RefundResult, error) {
	if len(items) == 0 {
		return nil, entity.Errf(entity.ErrValidation, "refund", "empty refund batch")
	}
	for i, item := range items {
		if item.OrderID == 0 {
			return nil, entity.Errf(entity.ErrValidation, "refund", "item %d: missing order id", i)
		}
		if item.Amount <= 0 {
			return nil, entity.Errf(entity.ErrValidation, "refund", "item %d: amount must be positive, got %d", i, item.Amount)
		}
	}

	request := entity.RefundRequest{
		RequestID:   uuid.NewString(),
		RefundsUUID: uuid.NewString(),
		URLStatus:   urlStatus,
		Refunds:     items,
	}

	status, body, err := c.do(ctx, http.MethodPost, pathRefund, request, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, gatewayRejected("refund", status, body)
	}
	var response entity.RefundResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, entity.WrapErr(entity.ErrGatewayRejected, "refund", "parse response", err)
	}
	return &entity.RefundResult{
		RequestID:   request.RequestID,
		RefundsUUID: request.RefundsUUID,
		Items:       response.Data,
	}, nil
}

// GetTransactionBySessionID looks up a transaction. A missing transaction
// is reported as a nil record, not an error.
func (c *Client) GetTransactionBySessionID(ctx context.Context, sessionID string) (*entity.TransactionInfo, error) {
	if sessionID == "" {
		return nil, entity.Errf(entity.ErrValidation, "get transaction", "missing session id")
	}
	status, body, err := c.do(ctx, http.MethodGet, pathTransactionBy+url.PathEscape(sessionID), nil, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, gatewayRejected("get transaction", status, body)
	}
	var response entity.TransactionInfoResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, entity.WrapErr(entity.ErrGatewayRejected, "get transaction", "parse response", err)
	}
	return &response.Data, nil
}

// GetRefundsByOrderID looks up the refunds recorded for a gateway order.
// No refunds yields a nil slice, not an error.
func (c *Client) GetRefundsByOrderID(ctx context.Context, orderID int64) ([]entity.RefundInfo, error) {
	if orderID == 0 {
		return nil, entity.Errf(entity.ErrValidation, "get refunds", "missing order id")
	}
	status, body, err := c.do(ctx, http.MethodGet, pathRefundByOrder+strconv.FormatInt(orderID, 10), nil, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, gatewayRejected("get refunds", status, body)
	}
	var response entity.RefundInfoResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, entity.WrapErr(entity.ErrGatewayRejected, "get refunds", "parse response", err)
	}
	return response.Data, nil
}

// GetPaymentMethods lists the payment methods available for a language,
// optionally filtered by amount and/or currency.
func (c *Client) GetPaymentMethods(ctx context.Context, lang string, filter *entity.MethodFilter) ([]entity.PaymentMethod, error) {
	if lang == "" {
		return nil, entity.Errf(entity.ErrValidation, "get methods", "missing language code")
	}
	var query url.Values
	if filter != nil {
		query = url.Values{}
		if filter.Amount > 0 {
			query.Set("amount", strconv.FormatInt(filter.Amount, 10))
		}
		if filter.Currency != "" {
			if !filter.Currency.Supported() {
				return nil, entity.Errf(entity.ErrValidation, "get methods", "unsupported currency %q", filter.Currency)
			}
			query.Set("currency", string(filter.Currency))
		}
	}
	status, body, err := c.do(ctx, http.MethodGet, pathPaymentMethods+url.PathEscape(lang), nil, query)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, gatewayRejected("get methods", status, body)
	}
	var response entity.PaymentMethodsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, entity.WrapErr(entity.ErrGatewayRejected, "get methods", "parse response", err)
	}
	return response.Data, nil
}

// TransactionRedirectURL builds the buyer-facing redirect URL for a token.
// Pure function, no network call.
func (c *Client) TransactionRedirectURL(token string) string {
	return c.baseURL + pathRedirect + token
}

// do executes an authenticated request and returns the status code and raw
// body. Only transport-level failures are errors here; the callers
// interpret gateway status codes. The response body is closed on all paths.
func (c *Client) do(ctx context.Context, method string, path string, body interface{}, query url.Values) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, entity.WrapErr(entity.ErrValidation, "encode request", path, err)
		}
		reader = bytes.NewBuffer(data)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint = endpoint + "?" + query.Encode()
	}
	request, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, entity.WrapErr(entity.ErrTransport, "create request", path, err)
	}
	request.SetBasicAuth(strconv.Itoa(c.posID), c.apiKey)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, entity.WrapErr(entity.ErrTransport, "request cancelled", path, ctx.Err())
		}
		return 0, nil, entity.WrapErr(entity.ErrTransport, "send request", path, err)
	}
	defer func(closer io.ReadCloser) {
		_ = closer.Close()
	}(response.Body)

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return 0, nil, entity.WrapErr(entity.ErrTransport, "read response", path, err)
	}
	return response.StatusCode, data, nil
}

// gatewayRejected builds a GatewayRejected error with the structured error
// payload attached when the body carries one.
func gatewayRejected(op string, status int, body []byte) *entity.Error {
	gwErr := &entity.GatewayError{}
	if err := json.Unmarshal(body, gwErr); err != nil || (gwErr.Code == 0 && gwErr.Message == "") {
		gwErr = &entity.GatewayError{
			Code:    status,
			Message: strings.TrimSpace(string(body)),
		}
	}
	rejected := entity.Errf(entity.ErrGatewayRejected, op, "http status %d", status)
	rejected.Gateway = gwErr
	return rejected
}

func isAlreadyVerified(message string) bool {
	return strings.Contains(strings.ToLower(message), "already verified")
}
