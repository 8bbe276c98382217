package internal

import (
	"crypto/sha512"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"przelewy/entity"
)

func sha384hex(payload string) string {
	sum := sha512.Sum384([]byte(payload))
	return hex.EncodeToString(sum[:])
}

func TestRegisterSign_MatchesGatewayScheme(t *testing.T) {
	signer := NewSigner("my-crc")
	sign, err := signer.RegisterSign("sess-1", 12345, 100, "PLN")
	require.NoError(t, err)

	expected := sha384hex(`{"sessionId":"sess-1","merchantId":12345,"amount":100,"currency":"PLN","crc":"my-crc"}`)
	assert.Equal(t, expected, sign)
}

func TestVerifySign_MatchesGatewayScheme(t *testing.T) {
	signer := NewSigner("my-crc")
	sign, err := signer.VerifySign("sess-1", 999, 100, "PLN")
	require.NoError(t, err)

	expected := sha384hex(`{"sessionId":"sess-1","orderId":999,"amount":100,"currency":"PLN","crc":"my-crc"}`)
	assert.Equal(t, expected, sign)
}

func TestNotificationSign_MatchesGatewayScheme(t *testing.T) {
	signer := NewSigner("my-crc")
	sign, err := signer.NotificationSign(&entity.Notification{
		MerchantID:   12345,
		PosID:        12345,
		SessionID:    "sess-1",
		Amount:       100,
		OriginAmount: 100,
		Currency:     "PLN",
		OrderID:      999,
		MethodID:     25,
		Statement:    "payment",
	})
	require.NoError(t, err)

	expected := sha384hex(`{"merchantId":12345,"posId":12345,"sessionId":"sess-1","amount":100,` +
		`"originAmount":100,"currency":"PLN","orderId":999,"methodId":25,"statement":"payment","crc":"my-crc"}`)
	assert.Equal(t, expected, sign)
}

func TestRegisterSign_AmpersandKeptVerbatim(t *testing.T) {
	signer := NewSigner("test-crc-key")
	sign, err := signer.RegisterSign("order&1", 12345, 4999, "PLN")
	require.NoError(t, err)

	expected := sha384hex(`{"sessionId":"order&1","merchantId":12345,"amount":4999,"currency":"PLN","crc":"test-crc-key"}`)
	assert.Equal(t, expected, sign)
}

func TestRegisterSign_NonASCIIEscaped(t *testing.T) {
	signer := NewSigner("test-crc-key")
	sign, err := signer.RegisterSign("zamówienie-1", 12345, 4999, "PLN")
	require.NoError(t, err)

	expected := sha384hex(`{"sessionId":"zamówienie-1","merchantId":12345,"amount":4999,"currency":"PLN","crc":"test-crc-key"}`)
	assert.Equal(t, expected, sign)
}

func TestNotificationSign_NonASCIIStatement(t *testing.T) {
	signer := NewSigner("my-crc")
	sign, err := signer.NotificationSign(&entity.Notification{
		MerchantID:   12345,
		PosID:        12345,
		SessionID:    "sess-1",
		Amount:       100,
		OriginAmount: 100,
		Currency:     "PLN",
		OrderID:      999,
		MethodID:     25,
		Statement:    "płatność <p24>",
	})
	require.NoError(t, err)

	expected := sha384hex(`{"merchantId":12345,"posId":12345,"sessionId":"sess-1","amount":100,` +
		`"originAmount":100,"currency":"PLN","orderId":999,"methodId":25,` +
		`"statement":"płatność <p24>","crc":"my-crc"}`)
	assert.Equal(t, expected, sign)
}

func TestSign_Deterministic(t *testing.T) {
	signer := NewSigner("crc")
	first, err := signer.RegisterSign("order-001", 12345, 4999, "PLN")
	require.NoError(t, err)
	second, err := signer.RegisterSign("order-001", 12345, 4999, "PLN")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	changedField, err := signer.RegisterSign("order-001", 12345, 5000, "PLN")
	require.NoError(t, err)
	assert.NotEqual(t, first, changedField)

	changedSecret, err := NewSigner("other").RegisterSign("order-001", 12345, 4999, "PLN")
	require.NoError(t, err)
	assert.NotEqual(t, first, changedSecret)
}

func TestSign_LowercaseHex(t *testing.T) {
	signer := NewSigner("crc")
	sign, err := signer.VerifySign("s", 1, 1, "PLN")
	require.NoError(t, err)
	assert.Len(t, sign, 96)
	assert.Equal(t, strings.ToLower(sign), sign)
}

func validNotification(t *testing.T, signer *Signer) *entity.Notification {
	t.Helper()
	n := &entity.Notification{
		MerchantID:   12345,
		PosID:        12345,
		SessionID:    "test-payment-123",
		Amount:       10000,
		OriginAmount: 10000,
		Currency:     "PLN",
		OrderID:      300000,
		MethodID:     25,
		Statement:    "p24-payment",
	}
	sign, err := signer.NotificationSign(n)
	require.NoError(t, err)
	n.Sign = sign
	return n
}

func TestCheckNotification_Valid(t *testing.T) {
	signer := NewSigner("test-crc-key")
	n := validNotification(t, signer)
	assert.NoError(t, signer.CheckNotification(n))
}

func TestCheckNotification_UppercaseDigestAccepted(t *testing.T) {
	signer := NewSigner("test-crc-key")
	n := validNotification(t, signer)
	n.Sign = strings.ToUpper(n.Sign)
	assert.NoError(t, signer.CheckNotification(n))
}

func TestCheckNotification_RejectsTampering(t *testing.T) {
	signer := NewSigner("test-crc-key")

	mutations := map[string]func(n *entity.Notification){
		"amount":     func(n *entity.Notification) { n.Amount = 99999 },
		"session id": func(n *entity.Notification) { n.SessionID = "other-session" },
		"order id":   func(n *entity.Notification) { n.OrderID = 1 },
		"currency":   func(n *entity.Notification) { n.Currency = "EUR" },
		"statement":  func(n *entity.Notification) { n.Statement = "tampered" },
	}
	for name, mutate := range mutations {
		n := validNotification(t, signer)
		mutate(n)
		err := signer.CheckNotification(n)
		require.Error(t, err, name)
		assert.True(t, entity.IsKind(err, entity.ErrInvalidCallback), name)
	}
}

func TestCheckNotification_RejectsMissingSign(t *testing.T) {
	signer := NewSigner("test-crc-key")
	n := validNotification(t, signer)
	n.Sign = ""
	err := signer.CheckNotification(n)
	require.Error(t, err)
	assert.True(t, entity.IsKind(err, entity.ErrInvalidCallback))
}

func TestCheckNotification_RejectsPrefixMatch(t *testing.T) {
	signer := NewSigner("test-crc-key")
	n := validNotification(t, signer)
	n.Sign = n.Sign[:len(n.Sign)-2]
	err := signer.CheckNotification(n)
	require.Error(t, err)
}

func TestCheckRefundNotification(t *testing.T) {
	signer := NewSigner("test-crc-key")
	n := &entity.RefundNotification{
		OrderID:     300000,
		SessionID:   "test-payment-123",
		MerchantID:  12345,
		RequestID:   "req-1",
		RefundsUUID: "uuid-1",
		Amount:      5000,
		Currency:    "PLN",
		Timestamp:   1700000000,
		Status:      entity.RefundCompleted,
	}
	sign, err := signer.RefundNotificationSign(n)
	require.NoError(t, err)
	n.Sign = sign
	assert.NoError(t, signer.CheckRefundNotification(n))

	n.Amount = 1
	err = signer.CheckRefundNotification(n)
	require.Error(t, err)
	assert.True(t, entity.IsKind(err, entity.ErrInvalidCallback))
}
