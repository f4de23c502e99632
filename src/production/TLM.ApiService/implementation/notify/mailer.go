package notify

import (
	"context"
	"sync"
	"time"

	config "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Config"
	logger "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Logger"
	auth_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/auth"
	telemetry_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/telemetry"
	"gopkg.in/gomail.v2"
)

const ownerLookupTimeout = 5 * time.Second

// Sender delivers a rendered email
type Sender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// OwnerLookup resolves the recipient of an alert
type OwnerLookup interface {
	GetByID(ctx context.Context, userID string) (*auth_models.User, error)
}

// SMTPSender sends mail through gomail
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPSender creates a sender from configuration
func NewSMTPSender(cfg config.EmailConfig) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		from:   cfg.From,
	}
}

// Send dials the SMTP server once per message
func (s *SMTPSender) Send(ctx context.Context, msg EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	return s.dialer.DialAndSend(m)
}

// Mailer delivers alert emails on background workers. Failures are logged and never retried.
type Mailer struct {
	queue  chan telemetry_models.AlertTriggeredEvent
	owners OwnerLookup
	sender Sender
	logger *logger.Logger

	workers  int
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopped  bool
	stopOnce sync.Once
}

// NewMailer creates a mailer; call Start before enqueueing
func NewMailer(owners OwnerLookup, sender Sender, queueSize, workers int, log *logger.Logger) *Mailer {
	if queueSize < 1 {
		queueSize = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &Mailer{
		queue:   make(chan telemetry_models.AlertTriggeredEvent, queueSize),
		owners:  owners,
		sender:  sender,
		logger:  log.WithComponent("mailer"),
		workers: workers,
	}
}

// Start launches the workers
func (m *Mailer) Start() {
	for i := 0; i < m.workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
}

// Enqueue hands an event to the workers without blocking. It reports false when the event was dropped.
func (m *Mailer) Enqueue(event telemetry_models.AlertTriggeredEvent) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.stopped {
		return false
	}
	select {
	case m.queue <- event:
		return true
	default:
		return false
	}
}

// Stop closes the queue and waits for queued emails to be attempted
func (m *Mailer) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		close(m.queue)
		m.mu.Unlock()
	})
	m.wg.Wait()
}

func (m *Mailer) worker() {
	defer m.wg.Done()
	for event := range m.queue {
		m.deliver(event)
	}
}

func (m *Mailer) deliver(event telemetry_models.AlertTriggeredEvent) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Logger.Error().Interface("panic", r).Str("alert_id", event.AlertID).Msg("Alert email panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), ownerLookupTimeout)
	owner, err := m.owners.GetByID(ctx, event.OwnerID)
	cancel()
	if err != nil {
		m.logger.Logger.Error().Err(err).Str("alert_id", event.AlertID).Str("owner_id", event.OwnerID).Msg("Failed to resolve alert owner")
		return
	}
	if !owner.WantsEmail() {
		m.logger.Logger.Debug().Str("alert_id", event.AlertID).Msg("Owner has email notifications disabled")
		return
	}

	msg, err := RenderAlertEmail(owner.Email, event)
	if err != nil {
		m.logger.ErrorWithError(err, "Failed to render alert email")
		return
	}

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.sender.Send(ctx, msg); err != nil {
		m.logger.Logger.Error().Err(err).Str("alert_id", event.AlertID).Str("to", owner.Email).Msg("Failed to send alert email")
		return
	}
	m.logger.Logger.Info().Str("alert_id", event.AlertID).Str("to", owner.Email).Msg("Alert email sent")
}
