package services

import (
	"context"

	"przelewy/entity"
)

type Database interface {
	WriteLogMessage(data Data) error

	SavePayment(ctx context.Context, payment *entity.Payment) error
	GetPayment(ctx context.Context, sessionID string) (*entity.Payment, error)
	UpdatePayment(ctx context.Context, payment *entity.Payment) error

	SaveNotification(ctx context.Context, notification *entity.Notification) error
	SaveRefundNotification(ctx context.Context, notification *entity.RefundNotification) error
}

type Data interface {
	DataType() string
}
