package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hackgods/physio-scheduling/internal/scheduling"
	"github.com/hackgods/physio-scheduling/pkg/logging"
)

// PromotionNotifier emails patients who were booked from the waiting list.
// Delivery is best effort; failures are logged.
type PromotionNotifier struct {
	sender  EmailSender
	timeout time.Duration
	logger  *logging.Logger
}

func NewPromotionNotifier(sender EmailSender, logger *logging.Logger) *PromotionNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &PromotionNotifier{
		sender:  sender,
		timeout: 5 * time.Second,
		logger:  logger.With("notify"),
	}
}

var _ scheduling.Notifier = (*PromotionNotifier)(nil)

func (n *PromotionNotifier) BookingPromoted(ctx context.Context, b scheduling.Booking, p scheduling.Patient) {
	if n.sender == nil {
		return
	}
	if p.Email == nil || strings.TrimSpace(*p.Email) == "" {
		n.logger.Debug().Str("booking_id", b.ID.String()).Msg("patient has no email, skipping promotion notice")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	if err := n.sender.Send(ctx, promotionMessage(b, p)); err != nil {
		n.logger.Warn().Err(err).Str("booking_id", b.ID.String()).Msg("promotion email failed")
	}
}

func promotionMessage(b scheduling.Booking, p scheduling.Patient) EmailMessage {
	when := fmt.Sprintf("%s at %s", b.Date.Format("Monday, 2 January 2006"), b.Time)
	body := fmt.Sprintf(
		"Dear %s,\n\nA slot has opened up and you have been booked from the waiting list.\n\n"+
			"When: %s (%d minutes)\nTherapist: %s\nRoom: %s\nType: %s\n\n"+
			"If you can no longer attend, please contact the department.\n",
		p.FullName(), when, b.Duration, b.TherapistName, b.Room, b.AppointmentType,
	)
	return EmailMessage{
		To:      *p.Email,
		ToName:  p.FullName(),
		Subject: "Your physiotherapy appointment on " + b.Date.Format(time.DateOnly),
		Body:    body,
	}
}
