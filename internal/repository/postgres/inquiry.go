package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/drivermed-api/internal/model"
)

const inquiryColumns = `id, first_name, last_name, email, phone, company, enquiry_type, message, status, created_at, updated_at`

func (r *inquiryRepository) Create(ctx context.Context, i *model.BusinessInquiry) error {
	query := `
		INSERT INTO business_inquiries (
			id, first_name, last_name, email, phone, company, enquiry_type, message, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	i.ID = uuid.New()
	i.CreatedAt = time.Now().UTC()
	i.UpdatedAt = i.CreatedAt
	if i.Status == "" {
		i.Status = model.InquiryStatusNew
	}

	_, err := r.db.ExecContext(ctx, query,
		i.ID, i.FirstName, i.LastName, i.Email, i.Phone, i.Company, i.EnquiryType, i.Message,
		i.Status, i.CreatedAt, i.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create inquiry: %w", err)
	}
	return nil
}

func (r *inquiryRepository) Get(ctx context.Context, id uuid.UUID) (*model.BusinessInquiry, error) {
	query := `SELECT ` + inquiryColumns + ` FROM business_inquiries WHERE id = $1`

	var inquiry model.BusinessInquiry
	if err := r.db.GetContext(ctx, &inquiry, query, id); err != nil {
		return nil, notFound(err, "get inquiry")
	}
	return &inquiry, nil
}

func (r *inquiryRepository) List(ctx context.Context, status model.InquiryStatus, page model.Pagination) ([]*model.BusinessInquiry, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM business_inquiries WHERE ($1 = '' OR status = $1)`
	if err := r.db.GetContext(ctx, &total, countQuery, string(status)); err != nil {
		return nil, 0, fmt.Errorf("failed to count inquiries: %w", err)
	}

	query := `SELECT ` + inquiryColumns + `
		FROM business_inquiries
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	inquiries := []*model.BusinessInquiry{}
	if err := r.db.SelectContext(ctx, &inquiries, query, string(status), page.PageSize, page.Offset()); err != nil {
		return nil, 0, fmt.Errorf("failed to list inquiries: %w", err)
	}
	return inquiries, total, nil
}

func (r *inquiryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.InquiryStatus) error {
	query := `UPDATE business_inquiries SET status = $1, updated_at = $2 WHERE id = $3`

	res, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update inquiry: %w", err)
	}
	return checkAffected(res, "update inquiry")
}
