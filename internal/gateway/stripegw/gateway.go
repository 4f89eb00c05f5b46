// Package stripegw adapts the Stripe API to the processor-neutral payment types.
package stripegw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jwalitptl/drivermed-api/internal/model"
	apperrors "github.com/jwalitptl/drivermed-api/pkg/errors"
	"github.com/jwalitptl/drivermed-api/pkg/metrics"
)

const upstreamName = "payment processor"

var tracer = otel.Tracer("drivermed.internal.gateway.stripe")

type Config struct {
	SecretKey     string
	WebhookSecret string
	// Timeout bounds every API call.
	Timeout time.Duration
}

type Gateway struct {
	client        *stripe.Client
	webhookSecret string
	timeout       time.Duration
	metrics       *metrics.Metrics
}

func New(cfg Config, m *metrics.Metrics) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Gateway{
		client:        stripe.NewClient(cfg.SecretKey),
		webhookSecret: cfg.WebhookSecret,
		timeout:       cfg.Timeout,
		metrics:       m,
	}
}

func (g *Gateway) CreateCheckoutSession(ctx context.Context, req *model.PaymentRequest) (*model.PaymentSession, error) {
	ctx, span := tracer.Start(ctx, "stripe.checkout_session.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.id", req.BookingID.String()),
		attribute.Int64("payment.amount", req.AmountPence),
	)

	params := &stripe.CheckoutSessionCreateParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.BookingID.String()),
		CustomerEmail:     stripe.String(req.CustomerEmail),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(req.AmountPence),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: req.Metadata,
		PaymentIntentData: &stripe.CheckoutSessionCreatePaymentIntentDataParams{
			Description: stripe.String(req.Description),
			Metadata:    req.Metadata,
		},
	}
	params.SetIdempotencyKey("checkout-" + req.BookingID.String())

	var session *stripe.CheckoutSession
	err := g.call(ctx, "create_checkout_session", func(ctx context.Context) error {
		var err error
		session, err = g.client.V1CheckoutSessions.Create(ctx, params)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("stripe.session_id", session.ID))
	return &model.PaymentSession{Reference: session.ID, RedirectURL: session.URL}, nil
}

func (g *Gateway) CreatePaymentIntent(ctx context.Context, req *model.PaymentRequest) (*model.PaymentSession, error) {
	ctx, span := tracer.Start(ctx, "stripe.payment_intent.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.id", req.BookingID.String()),
		attribute.Int64("payment.amount", req.AmountPence),
	)

	params := &stripe.PaymentIntentCreateParams{
		Amount:       stripe.Int64(req.AmountPence),
		Currency:     stripe.String(req.Currency),
		Description:  stripe.String(req.Description),
		ReceiptEmail: stripe.String(req.CustomerEmail),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: req.Metadata,
	}
	params.SetIdempotencyKey("intent-" + req.BookingID.String())

	var intent *stripe.PaymentIntent
	err := g.call(ctx, "create_payment_intent", func(ctx context.Context) error {
		var err error
		intent, err = g.client.V1PaymentIntents.Create(ctx, params)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("stripe.payment_intent_id", intent.ID))
	return &model.PaymentSession{Reference: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

// FetchCheckoutSession reads the authoritative session state, used by the browser return path.
func (g *Gateway) FetchCheckoutSession(ctx context.Context, id string) (*model.ProviderEvent, error) {
	ctx, span := tracer.Start(ctx, "stripe.checkout_session.retrieve")
	defer span.End()
	span.SetAttributes(attribute.String("stripe.session_id", id))

	params := &stripe.CheckoutSessionRetrieveParams{}
	params.AddExpand("payment_intent")

	var session *stripe.CheckoutSession
	err := g.call(ctx, "retrieve_checkout_session", func(ctx context.Context) error {
		var err error
		session, err = g.client.V1CheckoutSessions.Retrieve(ctx, id, params)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return sessionEvent(session, ""), nil
}

func (g *Gateway) FetchPaymentIntent(ctx context.Context, id string) (*model.ProviderEvent, error) {
	ctx, span := tracer.Start(ctx, "stripe.payment_intent.retrieve")
	defer span.End()
	span.SetAttributes(attribute.String("stripe.payment_intent_id", id))

	var intent *stripe.PaymentIntent
	err := g.call(ctx, "retrieve_payment_intent", func(ctx context.Context) error {
		var err error
		intent, err = g.client.V1PaymentIntents.Retrieve(ctx, id, &stripe.PaymentIntentRetrieveParams{})
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return intentEvent(intent, "", intentKind(intent)), nil
}

// Refund returns the full captured amount of the payment intent.
func (g *Gateway) Refund(ctx context.Context, paymentIntentID string) error {
	ctx, span := tracer.Start(ctx, "stripe.refund.create")
	defer span.End()
	span.SetAttributes(attribute.String("stripe.payment_intent_id", paymentIntentID))

	params := &stripe.RefundCreateParams{PaymentIntent: stripe.String(paymentIntentID)}
	params.SetIdempotencyKey("refund-" + paymentIntentID)

	err := g.call(ctx, "create_refund", func(ctx context.Context) error {
		_, err := g.client.V1Refunds.Create(ctx, params)
		return err
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// ParseWebhook verifies the Stripe-Signature header and reduces the event to a ProviderEvent.
func (g *Gateway) ParseWebhook(payload []byte, signature string) (*model.ProviderEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		if isSignatureError(err) {
			return nil, apperrors.NewSignatureInvalid(err)
		}
		return nil, apperrors.NewBadRequest("malformed webhook payload", err)
	}
	return eventFromStripe(event)
}

func eventFromStripe(event stripe.Event) (*model.ProviderEvent, error) {
	eventType := string(event.Type)

	switch eventType {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, apperrors.NewBadRequest("malformed payment intent", err)
		}
		kind := model.ProviderEventSucceeded
		if eventType == "payment_intent.payment_failed" {
			kind = model.ProviderEventFailed
		}
		pe := intentEvent(&intent, event.ID, kind)
		pe.Type = eventType
		return pe, nil

	case "checkout.session.completed", "checkout.session.expired":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, apperrors.NewBadRequest("malformed checkout session", err)
		}
		pe := sessionEvent(&session, event.ID)
		if eventType == "checkout.session.completed" && pe.Kind != model.ProviderEventSucceeded {
			// Completed but unpaid (delayed methods) carries no outcome yet.
			pe.Kind = model.ProviderEventIgnored
		}
		pe.Type = eventType
		return pe, nil
	}

	return &model.ProviderEvent{ID: event.ID, Type: eventType, Kind: model.ProviderEventIgnored}, nil
}

func intentEvent(intent *stripe.PaymentIntent, eventID string, kind model.ProviderEventKind) *model.ProviderEvent {
	return &model.ProviderEvent{
		ID:           eventID,
		Kind:         kind,
		References:   []string{intent.ID},
		Metadata:     intent.Metadata,
		AmountPence:  intent.Amount,
		RefundTarget: intent.ID,
	}
}

func intentKind(intent *stripe.PaymentIntent) model.ProviderEventKind {
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return model.ProviderEventSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return model.ProviderEventExpired
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if intent.LastPaymentError != nil {
			return model.ProviderEventFailed
		}
	}
	return model.ProviderEventPending
}

func sessionEvent(session *stripe.CheckoutSession, eventID string) *model.ProviderEvent {
	pe := &model.ProviderEvent{
		ID:          eventID,
		Kind:        model.ProviderEventPending,
		References:  []string{session.ID},
		Metadata:    session.Metadata,
		AmountPence: session.AmountTotal,
	}
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		pe.References = append(pe.References, session.PaymentIntent.ID)
		pe.RefundTarget = session.PaymentIntent.ID
	}

	switch {
	case session.Status == stripe.CheckoutSessionStatusExpired:
		pe.Kind = model.ProviderEventExpired
	case session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		pe.Kind = model.ProviderEventSucceeded
	}
	return pe
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrTooOld)
}

// call bounds fn by the gateway timeout, records latency and maps transport failures.
func (g *Gateway) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var timer *prometheus.Timer
	if g.metrics != nil {
		timer = prometheus.NewTimer(g.metrics.UpstreamLatency.WithLabelValues("stripe", operation))
	}
	err := fn(ctx)
	if timer != nil {
		timer.ObserveDuration()
	}

	if err == nil {
		return nil
	}
	if isTransient(err) {
		return apperrors.NewUpstreamTimeout(upstreamName, err)
	}
	return fmt.Errorf("stripe %s failed: %w", operation, err)
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == 429 || stripeErr.HTTPStatusCode >= 500
	}
	return false
}
