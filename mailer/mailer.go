// Package mailer delivers consent and renewal emails. Delivery is
// fire-and-forget from the caller's perspective: a failed send never fails
// the transaction that triggered it, it only surfaces as a soft warning and
// an operational alert.
package mailer

import (
	"fmt"
	"time"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"gopkg.in/gomail.v2"

	"github.com/kindred-inc/kindred-api/schema"
	"github.com/kindred-inc/kindred-api/utils"
)

type Notifier interface {
	SendConsentRequest(record *schema.ConsentRecord) error
	SendRenewalRequest(record *schema.ConsentRecord) error
}

type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	LinkBaseURL string
}

// SMTPNotifier sends through a plain SMTP relay. All sends go through a
// circuit breaker so a dead relay degrades to fast failures instead of
// request-long timeouts.
type SMTPNotifier struct {
	dialer  *gomail.Dialer
	from    string
	baseURL string
	breaker *gobreaker.CircuitBreaker
}

func NewSMTPNotifier(cfg Config) *SMTPNotifier {
	return &SMTPNotifier{
		dialer:  gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:    cfg.From,
		baseURL: cfg.LinkBaseURL,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "smtp",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.WithFields(log.Fields{
					"prefix":  "mailer",
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("smtp circuit breaker state change")
			},
		}),
	}
}

func (n *SMTPNotifier) SendConsentRequest(record *schema.ConsentRecord) error {
	link := fmt.Sprintf("%s/consent/verify/%s", n.baseURL, record.VerificationCode)
	return n.send(record, "email.consent_request.subject", "email.consent_request.body", link)
}

func (n *SMTPNotifier) SendRenewalRequest(record *schema.ConsentRecord) error {
	link := fmt.Sprintf("%s/renewals/%s", n.baseURL, record.RenewalVerificationCode)
	return n.send(record, "email.renewal_request.subject", "email.renewal_request.body", link)
}

func (n *SMTPNotifier) send(record *schema.ConsentRecord, subjectID, bodyID, link string) error {
	localizer := utils.NewLocalizer("en")

	data := map[string]interface{}{
		"ParentName":  record.ParentName,
		"StudentName": record.StudentID,
		"Link":        link,
	}

	subject, err := localizer.Localize(&i18n.LocalizeConfig{MessageID: subjectID, TemplateData: data})
	if err != nil {
		return fmt.Errorf("localize mail subject: %w", err)
	}
	body, err := localizer.Localize(&i18n.LocalizeConfig{MessageID: bodyID, TemplateData: data})
	if err != nil {
		return fmt.Errorf("localize mail body: %w", err)
	}

	message := gomail.NewMessage()
	message.SetHeader("From", n.from)
	message.SetHeader("To", record.ParentEmail)
	message.SetHeader("Subject", subject)
	message.SetBody("text/plain", body)

	_, err = n.breaker.Execute(func() (interface{}, error) {
		return nil, n.dialer.DialAndSend(message)
	})
	return err
}
