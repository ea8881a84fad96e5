package email

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/Allamymp/coinApiPortfolio/pkg/config"
	"github.com/Allamymp/coinApiPortfolio/pkg/logger"
	"github.com/Allamymp/coinApiPortfolio/pkg/metrics"
)

// Sender delivers transactional mail. A nil-host configuration produces a
// disabled sender that logs instead of dialing, so local setups work without
// an SMTP server.
type Sender struct {
	dialer *gomail.Dialer
	from   string
	appURL string
}

func NewSender(cfg config.SMTP, appURL string) *Sender {
	s := &Sender{
		from:   cfg.From,
		appURL: strings.TrimRight(appURL, "/"),
	}
	if cfg.Host != "" {
		s.dialer = gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	}
	return s
}

// SendActivation sends the account activation mail with a single-use token
// link.
func (s *Sender) SendActivation(to, token string) error {
	link := fmt.Sprintf("%s/api/v1/activate/%s", s.appURL, token)
	if s.dialer == nil {
		logger.Log.Info("email delivery disabled, skipping activation mail",
			zap.String("to", to), zap.String("link", link))
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Activate your coinApiPortfolio account")
	m.SetBody("text/plain",
		"Your account has been created. Open the link below to activate it:\n\n"+link)

	if err := s.dialer.DialAndSend(m); err != nil {
		metrics.EmailErrors.Inc()
		return fmt.Errorf("failed to send activation email: %w", err)
	}
	metrics.EmailsSent.Inc()
	return nil
}

// SendWelcome sends the confirmation mail after a successful activation.
func (s *Sender) SendWelcome(to string) error {
	if s.dialer == nil {
		logger.Log.Info("email delivery disabled, skipping welcome mail", zap.String("to", to))
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Welcome to coinApiPortfolio")
	m.SetBody("text/plain",
		"Your account is now active. You can sign in and start tracking your coins.")

	if err := s.dialer.DialAndSend(m); err != nil {
		metrics.EmailErrors.Inc()
		return fmt.Errorf("failed to send welcome email: %w", err)
	}
	metrics.EmailsSent.Inc()
	return nil
}
