package notification

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/jwalitptl/drivermed-api/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var funcs = template.FuncMap{
	"pounds": formatPounds,
}

func parseTemplates() (*template.Template, error) {
	t, err := template.New("notifications").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}
	return t, nil
}

func formatPounds(pence int64) string {
	return fmt.Sprintf("£%d.%02d", pence/100, pence%100)
}

// bookingView flattens a booking for the templates.
type bookingView struct {
	Reference     string
	FirstName     string
	CustomerName  string
	Email         string
	Phone         string
	ServiceTitle  string
	LocationName  string
	Date          string
	Time          string
	AmountPence   int64
	Voucher       string
	PaymentMethod string
	PaymentStatus string
}

func newBookingView(b *model.Booking) bookingView {
	v := bookingView{
		Reference:     shortReference(b),
		FirstName:     b.FirstName,
		CustomerName:  b.CustomerName(),
		Email:         b.Email,
		Phone:         b.Phone,
		ServiceTitle:  b.ServiceTitle,
		LocationName:  b.LocationName,
		Date:          b.Date,
		Time:          b.Time,
		AmountPence:   b.AmountPence,
		PaymentMethod: "online",
		PaymentStatus: string(b.PaymentStatusValue()),
	}
	if b.PaymentMethod == model.PaymentMethodInPerson {
		v.PaymentMethod = "pay in person"
	}
	if b.VoucherCode != nil {
		v.Voucher = *b.VoucherCode
	}
	if v.PaymentStatus == "" {
		v.PaymentStatus = "not started"
	}
	return v
}

// shortReference is what customers quote on the phone.
func shortReference(b *model.Booking) string {
	return strings.ToUpper(b.ID.String()[:8])
}

func (s *Service) render(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}
