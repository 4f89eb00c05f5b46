package email

import (
	"context"

	"github.com/jwalitptl/drivermed-api/pkg/circuitbreaker"
	"github.com/jwalitptl/drivermed-api/pkg/logger"
)

// BreakerSender stops calling a failing provider for a while instead of stacking up timeouts.
type BreakerSender struct {
	next   Sender
	cb     *circuitbreaker.CircuitBreaker
	logger *logger.Logger
}

func NewBreakerSender(next Sender, name string, log *logger.Logger) *BreakerSender {
	return &BreakerSender{
		next: next,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "email-" + name,
			MaxFailures: 5,
		}),
		logger: log,
	}
}

func (s *BreakerSender) Send(ctx context.Context, msg Message) error {
	err := s.cb.Execute(func() error {
		return s.next.Send(ctx, msg)
	})
	if err == circuitbreaker.ErrOpen {
		s.logger.Warn("email circuit open, message dropped", "breaker", s.cb.Name(), "subject", msg.Subject)
	}
	return err
}
