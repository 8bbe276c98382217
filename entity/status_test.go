package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusMapping_Total(t *testing.T) {
	cases := map[TransactionStatus]Trigger{
		StatusNoPayment:       TriggerNone,
		StatusAdvancePayment:  TriggerConfirmPrepared,
		StatusPaymentMade:     TriggerConfirmPayment,
		StatusPaymentReturned: TriggerConfirmRefund,
	}
	for status, want := range cases {
		trigger, err := status.Trigger()
		require.NoError(t, err)
		assert.Equal(t, want, trigger)
	}
}

func TestStatusMapping_UnknownCode(t *testing.T) {
	for _, code := range []TransactionStatus{-1, 4, 5, 99} {
		_, err := code.Trigger()
		require.Error(t, err, "code %d", code)
		assert.True(t, IsKind(err, ErrUnmappedStatus))
	}
}

func TestErrorKindMatching(t *testing.T) {
	err := Errf(ErrTransport, "send request", "connection refused")
	assert.True(t, IsKind(err, ErrTransport))
	assert.False(t, IsKind(err, ErrValidation))

	wrapped := WrapErr(ErrGatewayRejected, "register", "http status 400", err)
	assert.True(t, IsKind(wrapped, ErrGatewayRejected))
	assert.False(t, IsKind(nil, ErrTransport))
}
