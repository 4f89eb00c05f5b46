package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

// IsTerminal reports whether the status accepts no further transitions.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCancelled || s == BookingStatusCompleted
}

// BlocksSlot reports whether a booking in this status claims its slot.
func (s BookingStatus) BlocksSlot() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// PaymentStatusPtr is a helper for the nullable column.
func PaymentStatusPtr(s PaymentStatus) *PaymentStatus {
	return &s
}

type PaymentMethod string

const (
	PaymentMethodOnline   PaymentMethod = "online"
	PaymentMethodInPerson PaymentMethod = "inPerson"
)

type Booking struct {
	ID                uuid.UUID      `db:"id" json:"id"`
	ServiceID         uuid.UUID      `db:"service_id" json:"service_id"`
	ServiceTitle      string         `db:"service_title" json:"service_title"`
	ServicePricePence int64          `db:"service_price_pence" json:"service_price_pence"`
	LocationID        uuid.UUID      `db:"location_id" json:"location_id"`
	LocationName      string         `db:"location_name" json:"location_name"`
	Date              string         `db:"booking_date" json:"date"`
	Time              string         `db:"slot_time" json:"time"`
	FirstName         string         `db:"first_name" json:"first_name"`
	LastName          string         `db:"last_name" json:"last_name"`
	Email             string         `db:"email" json:"email"`
	Phone             string         `db:"phone" json:"phone"`
	DateOfBirth       *string        `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Postcode          string         `db:"postcode" json:"postcode"`
	LicenseNumber     *string        `db:"license_number" json:"license_number,omitempty"`
	Employer          *string        `db:"employer" json:"employer,omitempty"`
	VehicleType       *string        `db:"vehicle_type" json:"vehicle_type,omitempty"`
	HearAboutUs       string         `db:"hear_about_us" json:"hear_about_us"`
	MarketingConsent  bool           `db:"marketing_consent" json:"marketing_consent"`
	VoucherCode       *string        `db:"voucher_code" json:"voucher_code,omitempty"`
	DiscountPence     int64          `db:"discount_pence" json:"discount_pence"`
	AmountPence       int64          `db:"amount_pence" json:"amount_pence"`
	Status            BookingStatus  `db:"status" json:"status"`
	PaymentStatus     *PaymentStatus `db:"payment_status" json:"payment_status"`
	PaymentMethod     PaymentMethod  `db:"payment_method" json:"payment_method"`
	PaymentIntentID   *string        `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	IsPlaceholder     bool           `db:"is_placeholder" json:"is_placeholder"`
	AdminNotes        *string        `db:"admin_notes" json:"admin_notes,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

func (b *Booking) CustomerName() string {
	return strings.TrimSpace(b.FirstName + " " + b.LastName)
}

// PaymentStatusValue returns the payment status or "" when no payment attempt exists yet.
func (b *Booking) PaymentStatusValue() PaymentStatus {
	if b.PaymentStatus == nil {
		return ""
	}
	return *b.PaymentStatus
}

// State renders the (status, payment_status) pair for logs and errors.
func (b *Booking) State() string {
	ps := string(b.PaymentStatusValue())
	if ps == "" {
		ps = "none"
	}
	return fmt.Sprintf("%s/%s", b.Status, ps)
}

// HasPaymentReference reports whether a processor reference has been stored.
func (b *Booking) HasPaymentReference() bool {
	return b.PaymentIntentID != nil && *b.PaymentIntentID != ""
}

type CreateBookingRequest struct {
	ServiceID        string        `json:"service_id" validate:"required,uuid"`
	LocationID       string        `json:"location_id" validate:"required,uuid"`
	Date             string        `json:"date" validate:"required,isodate"`
	Time             string        `json:"time" validate:"required,hhmm"`
	FirstName        string        `json:"first_name" validate:"required,max=100"`
	LastName         string        `json:"last_name" validate:"required,max=100"`
	Email            string        `json:"email" validate:"required,email,max=254"`
	Phone            string        `json:"phone" validate:"required,phone"`
	DateOfBirth      string        `json:"date_of_birth" validate:"max=40"`
	Postcode         string        `json:"postcode" validate:"required,max=10"`
	LicenseNumber    *string       `json:"license_number,omitempty" validate:"omitempty,max=40"`
	Employer         *string       `json:"employer,omitempty" validate:"omitempty,max=200"`
	VehicleType      *string       `json:"vehicle_type,omitempty" validate:"omitempty,max=100"`
	HearAboutUs      string        `json:"hear_about_us" validate:"required,max=100"`
	MarketingConsent bool          `json:"marketing_consent"`
	VoucherCode      string        `json:"voucher_code" validate:"max=40"`
	PaymentMethod    PaymentMethod `json:"payment_method" validate:"required,oneof=online inPerson"`
}

type BookingFilter struct {
	Status     BookingStatus
	LocationID *uuid.UUID
	DateFrom   string
	DateTo     string
	Search     string
	Pagination
}

// BookingMatch is the exact tuple used when a processor event carries no known reference.
type BookingMatch struct {
	Email        string
	ServiceTitle string
	Date         string
	Time         string
}

func (m BookingMatch) Complete() bool {
	return m.Email != "" && m.ServiceTitle != "" && m.Date != "" && m.Time != ""
}

// Availability is the result of a slot computation for one location and day.
type Availability struct {
	LocationID  uuid.UUID `json:"location_id"`
	Date        string    `json:"date"`
	Slots       []string  `json:"slots"`
	Unavailable bool      `json:"unavailable"`
	Reason      string    `json:"reason,omitempty"`
}
