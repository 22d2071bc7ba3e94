package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ChargeRequest is what a gateway needs to take a payment.
type ChargeRequest struct {
	OrderNumber string
	Amount      decimal.Decimal
	Currency    string
}

// PaymentGateway charges a customer. Implementations return the gateway's
// transaction reference even when the charge is declined, if they have one.
type PaymentGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (transactionID string, err error)
}

// StubGateway approves every charge unless Decline is set. It backs the
// "stub" payment method.
type StubGateway struct {
	Decline error
}

func (g StubGateway) Charge(ctx context.Context, req ChargeRequest) (string, error) {
	ref := "stub_" + uuid.NewString()
	if g.Decline != nil {
		return ref, g.Decline
	}
	return ref, nil
}
