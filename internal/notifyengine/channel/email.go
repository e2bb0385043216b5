package channel

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/apimgr/notifyengine/internal/notifyengine/apierr"
	"github.com/apimgr/notifyengine/internal/notifyengine/model"
	"github.com/apimgr/notifyengine/internal/notifyengine/retry"
)

// SMTPConfig is the resolved configuration for EmailAdapter, mirroring
// the SMTPConfig shape in src/email/email.go.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

// EmailAdapter sends notifications over SMTP, grounded on EmailChannel
// (src/server/service/email_channel.go) and Service (src/email/email.go),
// generalized to return a DispatchOutcome instead of a bare error so the
// worker can classify retryability.
type EmailAdapter struct {
	cfg SMTPConfig
}

// NewEmailAdapter wraps cfg.
func NewEmailAdapter(cfg SMTPConfig) *EmailAdapter {
	return &EmailAdapter{cfg: cfg}
}

// Type implements Adapter.
func (a *EmailAdapter) Type() model.Channel { return model.ChannelEmail }

// ValidateConfig checks the SMTP server is reachable, following the
// "validate on save, reject invalid config" rule email_channel.go applies
// before persisting a channel config.
func (a *EmailAdapter) ValidateConfig(config map[string]string) error {
	host := config["smtp_host"]
	portStr := config["smtp_port"]
	if host == "" || portStr == "" {
		return fmt.Errorf("%w: smtp_host and smtp_port are required", apierr.ErrInvalidRequest)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("%w: smtp_port must be numeric", apierr.ErrInvalidRequest)
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("smtp connection failed: %w", err)
	}
	defer conn.Close()
	return nil
}

// Send delivers one notification over SMTP.
func (a *EmailAdapter) Send(ctx context.Context, n *model.Notification, recipient RecipientInfo) (DispatchOutcome, error) {
	if recipient.Email == "" {
		return DispatchOutcome{Success: false, ClassifiedFailure: model.FailureInvalidRecipient, ErrorMessage: "recipient has no email address"}, nil
	}

	from := a.cfg.From
	if a.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", a.cfg.FromName, a.cfg.From)
	}

	msg := fmt.Sprintf("From: %s\r\n", from)
	msg += fmt.Sprintf("To: %s\r\n", recipient.Email)
	msg += fmt.Sprintf("Subject: %s\r\n", n.Subject)
	msg += fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	msg += "Content-Type: text/html; charset=UTF-8\r\n"
	msg += "\r\n"
	msg += n.Body

	auth := smtp.PlainAuth("", a.cfg.Username, a.cfg.Password, a.cfg.Host)
	addr := fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port)

	if err := smtp.SendMail(addr, auth, a.cfg.From, []string{recipient.Email}, []byte(msg)); err != nil {
		kind := classifySMTPError(err)
		return DispatchOutcome{Success: false, ClassifiedFailure: kind, ErrorMessage: err.Error()}, nil
	}

	return DispatchOutcome{Success: true, ProviderResponse: "250 accepted"}, nil
}

// PollStatus is not supported; SMTP gives no provider-side delivery status.
func (a *EmailAdapter) PollStatus(ctx context.Context, providerDeliveryID string) (ProviderStatus, error) {
	return ProviderStatus{}, fmt.Errorf("email: %w: status polling not supported", apierr.ErrInvalidRequest)
}

// classifySMTPError maps the coarse failure modes net/smtp surfaces onto
// the shared FailureKind taxonomy; SMTP gives no structured status code so
// any error that is not a timeout or a net.OpError is classified as the
// retryable Unknown kind.
func classifySMTPError(err error) model.FailureKind {
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return model.FailureTimeout
	}
	if _, ok := err.(*net.OpError); ok {
		return model.FailureNetworkError
	}
	return retry.ClassifyHTTPStatus(0)
}
