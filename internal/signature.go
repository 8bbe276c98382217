package internal

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"gitee.com/golang-module/dongle"

	"przelewy/entity"
)

// The gateway computes each sign over a fixed, ordered field set serialized
// as compact JSON with the CRC key appended under "crc", hashed with
// SHA-384 and rendered as lowercase hex. Field names, their order and the
// absence of whitespace must match the gateway byte for byte, so each
// operation gets its own named struct instead of one parameterized list.

type registerSign struct {
	SessionID  string `json:"sessionId"`
	MerchantID int    `json:"merchantId"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	CRC        string `json:"crc"`
}

type verifySign struct {
	SessionID string `json:"sessionId"`
	OrderID   int64  `json:"orderId"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	CRC       string `json:"crc"`
}

type notificationSign struct {
	MerchantID   int    `json:"merchantId"`
	PosID        int    `json:"posId"`
	SessionID    string `json:"sessionId"`
	Amount       int64  `json:"amount"`
	OriginAmount int64  `json:"originAmount"`
	Currency     string `json:"currency"`
	OrderID      int64  `json:"orderId"`
	MethodID     int    `json:"methodId"`
	Statement    string `json:"statement"`
	CRC          string `json:"crc"`
}

type refundNotificationSign struct {
	OrderID     int64  `json:"orderId"`
	SessionID   string `json:"sessionId"`
	RequestID   string `json:"requestId"`
	RefundsUUID string `json:"refundsUuid"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Timestamp   int64  `json:"timestamp"`
	Status      int    `json:"status"`
	CRC         string `json:"crc"`
}

// Signer computes and checks gateway signatures with the merchant CRC key.
type Signer struct {
	crc string
}

func NewSigner(crcKey string) *Signer {
	return &Signer{crc: crcKey}
}

// sign serializes the field struct and returns the SHA-384 hex digest.
// The gateway's canonical serialization is compact ASCII-only JSON: no
// whitespace, & < > kept verbatim, non-ASCII runes as \uXXXX escapes.
// json.Marshal keeps struct field order and inserts no whitespace, but it
// HTML-escapes and emits raw UTF-8, so the output is rewritten to match.
func (s *Signer) sign(fields interface{}) (string, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(fields); err != nil {
		return "", fmt.Errorf("serialize sign fields: %w", err)
	}
	payload := asciiEscape(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	return dongle.Encrypt.FromBytes(payload).BySha384().ToHexString(), nil
}

// asciiEscape rewrites runes outside ASCII as lowercase \uXXXX escapes,
// using surrogate pairs above the basic plane.
func asciiEscape(in []byte) []byte {
	out := make([]byte, 0, len(in))
	for _, r := range string(in) {
		switch {
		case r < utf8.RuneSelf:
			out = append(out, byte(r))
		case r > 0xFFFF:
			high, low := utf16.EncodeRune(r)
			out = append(out, fmt.Sprintf(`\u%04x\u%04x`, high, low)...)
		default:
			out = append(out, fmt.Sprintf(`\u%04x`, r)...)
		}
	}
	return out
}

func (s *Signer) RegisterSign(sessionID string, merchantID int, amount int64, currency string) (string, error) {
	return s.sign(registerSign{
		SessionID:  sessionID,
		MerchantID: merchantID,
		Amount:     amount,
		Currency:   currency,
		CRC:        s.crc,
	})
}

func (s *Signer) VerifySign(sessionID string, orderID int64, amount int64, currency string) (string, error) {
	return s.sign(verifySign{
		SessionID: sessionID,
		OrderID:   orderID,
		Amount:    amount,
		Currency:  currency,
		CRC:       s.crc,
	})
}

func (s *Signer) NotificationSign(n *entity.Notification) (string, error) {
	return s.sign(notificationSign{
		MerchantID:   n.MerchantID,
		PosID:        n.PosID,
		SessionID:    n.SessionID,
		Amount:       n.Amount,
		OriginAmount: n.OriginAmount,
		Currency:     n.Currency,
		OrderID:      n.OrderID,
		MethodID:     n.MethodID,
		Statement:    n.Statement,
		CRC:          s.crc,
	})
}

func (s *Signer) RefundNotificationSign(n *entity.RefundNotification) (string, error) {
	return s.sign(refundNotificationSign{
		OrderID:     n.OrderID,
		SessionID:   n.SessionID,
		RequestID:   n.RequestID,
		RefundsUUID: n.RefundsUUID,
		Amount:      n.Amount,
		Currency:    n.Currency,
		Timestamp:   n.Timestamp,
		Status:      int(n.Status),
		CRC:         s.crc,
	})
}

// CheckNotification verifies the signature of a payment notification.
// A mismatch is an authentication failure, never a warning.
func (s *Signer) CheckNotification(n *entity.Notification) error {
	if n.Sign == "" {
		return entity.Errf(entity.ErrInvalidCallback, "check notification", "missing sign")
	}
	expected, err := s.NotificationSign(n)
	if err != nil {
		return entity.WrapErr(entity.ErrInvalidCallback, "check notification", "compute sign", err)
	}
	if !equalDigest(expected, n.Sign) {
		return entity.Errf(entity.ErrInvalidCallback, "check notification",
			"bad signature for session %s", n.SessionID)
	}
	return nil
}

// CheckRefundNotification verifies the signature of a refund notification.
func (s *Signer) CheckRefundNotification(n *entity.RefundNotification) error {
	if n.Sign == "" {
		return entity.Errf(entity.ErrInvalidCallback, "check refund notification", "missing sign")
	}
	expected, err := s.RefundNotificationSign(n)
	if err != nil {
		return entity.WrapErr(entity.ErrInvalidCallback, "check refund notification", "compute sign", err)
	}
	if !equalDigest(expected, n.Sign) {
		return entity.Errf(entity.ErrInvalidCallback, "check refund notification",
			"bad signature for session %s", n.SessionID)
	}
	return nil
}

// equalDigest compares two hex digests in constant time, ignoring case.
// Prefix or partial matches never pass.
func equalDigest(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(
		[]byte(strings.ToLower(a)),
		[]byte(strings.ToLower(b)),
	) == 1
}
