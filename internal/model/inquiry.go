package model

import (
	"time"

	"github.com/google/uuid"
)

type InquiryStatus string

const (
	InquiryStatusNew        InquiryStatus = "new"
	InquiryStatusInProgress InquiryStatus = "in_progress"
	InquiryStatusClosed     InquiryStatus = "closed"
)

type BusinessInquiry struct {
	ID          uuid.UUID     `db:"id" json:"id"`
	FirstName   string        `db:"first_name" json:"first_name"`
	LastName    string        `db:"last_name" json:"last_name"`
	Email       string        `db:"email" json:"email"`
	Phone       string        `db:"phone" json:"phone"`
	Company     string        `db:"company" json:"company"`
	EnquiryType string        `db:"enquiry_type" json:"enquiry_type"`
	Message     string        `db:"message" json:"message"`
	Status      InquiryStatus `db:"status" json:"status"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

type CreateInquiryRequest struct {
	FirstName   string `json:"first_name" validate:"required,max=100"`
	LastName    string `json:"last_name" validate:"required,max=100"`
	Email       string `json:"email" validate:"required,email"`
	Phone       string `json:"phone" validate:"omitempty,phone"`
	Company     string `json:"company" validate:"required,max=200"`
	EnquiryType string `json:"enquiry_type" validate:"required,max=100"`
	Message     string `json:"message" validate:"required,max=5000"`
}

type UpdateInquiryStatusRequest struct {
	Status InquiryStatus `json:"status" validate:"required,oneof=new in_progress closed"`
}
