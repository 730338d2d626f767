package email

import (
	"fmt"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/memolab/admingate/pkg/logger"
)

// Service sends the gating subsystem's notification mails. With a
// SendGrid key it sends for real; without one it logs the mail instead,
// which is what development and tests want.
type Service struct {
	fromEmail   string
	fromName    string
	baseURL     string
	sendGridKey string
	useSendGrid bool
	log         logger.Logger
}

// NewService creates a new email service
func NewService(fromEmail, fromName, baseURL, sendGridAPIKey string, log logger.Logger) *Service {
	useSendGrid := sendGridAPIKey != ""
	if useSendGrid {
		log.Info("email service initialized with SendGrid")
	} else {
		log.Warn("email service in console-only mode", "hint", "set SENDGRID_API_KEY for production")
	}

	return &Service{
		fromEmail:   fromEmail,
		fromName:    fromName,
		baseURL:     baseURL,
		sendGridKey: sendGridAPIKey,
		useSendGrid: useSendGrid,
		log:         log,
	}
}

// SendAdminApplication notifies the operator that an account requested
// admin status.
func (s *Service) SendAdminApplication(operatorEmail, applicantEmail, applicantName string, applicantID int64) error {
	subject := "Admin application received"
	adminURL := fmt.Sprintf("%s/admin", s.baseURL)
	plain := fmt.Sprintf(
		"An admin application has arrived.\n\nUsername: %s\nEmail: %s\nAccount ID: %d\n\nReview it here: %s\n",
		applicantName, applicantEmail, applicantID, adminURL)
	html := fmt.Sprintf(`
		<html><body>
		<h2>Admin application received</h2>
		<p><strong>%s</strong> (%s, account %d) has applied for admin access.</p>
		<p><a href="%s">Open the admin panel</a> to approve or reject.</p>
		</body></html>`, applicantName, applicantEmail, applicantID, adminURL)

	return s.send(operatorEmail, "Operator", subject, html, plain)
}

// SendApprovalNotice tells an applicant they were approved and where to
// complete payment.
func (s *Service) SendApprovalNotice(toEmail, toName string) error {
	subject := "Your admin application was approved"
	paymentURL := fmt.Sprintf("%s/admin/payment", s.baseURL)
	plain := fmt.Sprintf(
		"%s,\n\nYour admin application was approved.\nComplete the payment to activate admin access:\n\n%s\n",
		toName, paymentURL)
	html := fmt.Sprintf(`
		<html><body>
		<h2>Application approved</h2>
		<p>Hi %s,</p>
		<p>Your admin application was approved. Complete the payment to activate admin access:</p>
		<p><a href="%s">Go to payment</a></p>
		</body></html>`, toName, paymentURL)

	return s.send(toEmail, toName, subject, html, plain)
}

// SendAdminTokenMail delivers the token password issued on payment. The
// raw password exists only in this mail; the database keeps a hash.
func (s *Service) SendAdminTokenMail(toEmail, toName, tokenPassword string, expiresAt time.Time) error {
	subject := "Your admin token password"
	expires := expiresAt.UTC().Format("2006-01-02 15:04 MST")
	plain := fmt.Sprintf(
		"%s,\n\nYour admin plan payment is complete.\nUse this token password for admin login:\n\n%s\n\nValid until: %s\n\nThe same password works for the whole subscription window. After it expires a new payment is required.\n",
		toName, tokenPassword, expires)
	html := fmt.Sprintf(`
		<html><body>
		<h2>Payment complete</h2>
		<p>Hi %s,</p>
		<p>Use this token password for admin login:</p>
		<p><code>%s</code></p>
		<p>Valid until <strong>%s</strong>. After expiry a new payment is required.</p>
		</body></html>`, toName, tokenPassword, expires)

	return s.send(toEmail, toName, subject, html, plain)
}

// SendExpiryNotice warns that the subscription window is about to close.
func (s *Service) SendExpiryNotice(toEmail, toName string, remaining time.Duration) error {
	subject := "Your admin subscription expires soon"
	minutes := int(remaining / time.Minute)
	paymentURL := fmt.Sprintf("%s/admin/payment", s.baseURL)
	plain := fmt.Sprintf(
		"%s,\n\nYour admin subscription expires in about %d minutes.\nRenew here to keep access: %s\n",
		toName, minutes, paymentURL)
	html := fmt.Sprintf(`
		<html><body>
		<p>Hi %s,</p>
		<p>Your admin subscription expires in about <strong>%d minutes</strong>.</p>
		<p><a href="%s">Renew now</a> to keep access.</p>
		</body></html>`, toName, minutes, paymentURL)

	return s.send(toEmail, toName, subject, html, plain)
}

// SendLowBalanceWarning warns once per balance value when points run low.
func (s *Service) SendLowBalanceWarning(toEmail, toName string, balance int) error {
	subject := "AI points running low"
	plain := fmt.Sprintf(
		"%s,\n\nOnly %d AI points remain on your account.\nA new payment resets the balance to the full allotment.\n",
		toName, balance)
	html := fmt.Sprintf(`
		<html><body>
		<p>Hi %s,</p>
		<p>Only <strong>%d AI points</strong> remain on your account.</p>
		<p>A new payment resets the balance to the full allotment.</p>
		</body></html>`, toName, balance)

	return s.send(toEmail, toName, subject, html, plain)
}

func (s *Service) send(toEmail, toName, subject, htmlBody, plainBody string) error {
	if !s.useSendGrid {
		s.log.Info("email (console mode)", "to", toEmail, "subject", subject)
		return nil
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(toName, toEmail)
	message := mail.NewSingleEmail(from, subject, to, plainBody, htmlBody)

	client := sendgrid.NewSendClient(s.sendGridKey)
	response, err := client.Send(message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned error status: %d", response.StatusCode)
	}

	s.log.Info("email sent", "to", toEmail, "subject", subject, "status", response.StatusCode)
	return nil
}
