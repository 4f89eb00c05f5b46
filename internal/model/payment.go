package model

import (
	"github.com/google/uuid"
)

// PaymentMode selects between hosted checkout and an embedded card form.
type PaymentMode string

const (
	PaymentModeCheckout PaymentMode = "checkout"
	PaymentModeIntent   PaymentMode = "intent"
)

// PaymentInitiation is returned to the browser after a payment was started.
type PaymentInitiation struct {
	BookingID         uuid.UUID   `json:"booking_id"`
	Mode              PaymentMode `json:"mode"`
	ProviderReference string      `json:"provider_reference,omitempty"`
	RedirectURL       string      `json:"redirect_url,omitempty"`
	ClientSecret      string      `json:"client_secret,omitempty"`
	AmountPence       int64       `json:"amount_pence"`
	Currency          string      `json:"currency"`
	// Settled is true when nothing had to be charged and the booking is already confirmed.
	Settled bool `json:"settled"`
}

// PaymentRequest is the processor-neutral description of a charge.
type PaymentRequest struct {
	BookingID     uuid.UUID
	AmountPence   int64
	Currency      string
	Description   string
	CustomerEmail string
	Metadata      map[string]string
	SuccessURL    string
	CancelURL     string
}

// PaymentSession is what the processor hands back on initiation.
type PaymentSession struct {
	Reference    string
	RedirectURL  string
	ClientSecret string
}

type ProviderEventKind string

const (
	ProviderEventSucceeded ProviderEventKind = "succeeded"
	ProviderEventFailed    ProviderEventKind = "failed"
	ProviderEventExpired   ProviderEventKind = "expired"
	// ProviderEventPending covers sessions that are still open or unpaid.
	ProviderEventPending ProviderEventKind = "pending"
	ProviderEventIgnored ProviderEventKind = "ignored"
)

// ProviderEvent is a processor notification reduced to what reconciliation needs.
type ProviderEvent struct {
	ID   string
	Type string
	Kind ProviderEventKind
	// References holds every processor identifier the event carries, e.g. a checkout
	// session id and its payment intent id.
	References  []string
	Metadata    map[string]string
	AmountPence int64
	// RefundTarget is the identifier to refund against when the payment must be voided.
	RefundTarget string
}

// Match builds the fallback tuple from the metadata bag.
func (e *ProviderEvent) Match() BookingMatch {
	return BookingMatch{
		Email:        e.Metadata[MetaEmail],
		ServiceTitle: e.Metadata[MetaServiceTitle],
		Date:         e.Metadata[MetaDate],
		Time:         e.Metadata[MetaTime],
	}
}

// Metadata keys attached to every payment.
const (
	MetaBookingID    = "booking_id"
	MetaServiceTitle = "service_title"
	MetaLocationName = "location_name"
	MetaDate         = "date"
	MetaTime         = "time"
	MetaCustomerName = "customer_name"
	MetaEmail        = "email"
)

// PaymentMetadata builds the metadata bag that lets a processor event be traced back to the booking.
func PaymentMetadata(b *Booking) map[string]string {
	return map[string]string{
		MetaBookingID:    b.ID.String(),
		MetaServiceTitle: b.ServiceTitle,
		MetaLocationName: b.LocationName,
		MetaDate:         b.Date,
		MetaTime:         b.Time,
		MetaCustomerName: b.CustomerName(),
		MetaEmail:        b.Email,
	}
}
