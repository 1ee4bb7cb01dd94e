// internal/services/notification_service.go
package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/vendora/backend/internal/config"
	"github.com/vendora/backend/internal/models"
)

// NotificationService sends the out-of-band customer email: download link in
// one channel, access code in the same message but never in the URL itself.
// Delivery of the email is best effort; the token and license already exist
// when the email goes out.
type NotificationService struct {
	cfg     config.EmailConfig
	baseURL string
	logger  *logrus.Entry
}

func NewNotificationService(cfg config.EmailConfig, baseURL string) *NotificationService {
	return &NotificationService{
		cfg:     cfg,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logrus.WithField("component", "notification"),
	}
}

type deliveryEmailData struct {
	ProductName   string
	DownloadURL   string
	AccessCode    string
	LicenseKey    string
	MaxDownloads  int
	ExpiresAt     string
	Watermarked   bool
	SupportEmail  string
	CustomerEmail string
}

var deliveryEmailTmpl = template.Must(template.New("delivery").Parse(`
<html>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
	<h2>Your purchase is ready</h2>
	<p>Thank you for purchasing <strong>{{.ProductName}}</strong>.</p>

	<p><a href="{{.DownloadURL}}" style="display:inline-block;padding:12px 24px;background:#2563eb;color:#fff;text-decoration:none;border-radius:6px;">Download now</a></p>

	<p>Your access code: <strong style="font-size:18px;letter-spacing:2px;">{{.AccessCode}}</strong><br>
	You will be asked for it on your first download.</p>

	{{if .LicenseKey}}
	<p>Your license key: <strong style="font-size:16px;letter-spacing:1px;">{{.LicenseKey}}</strong></p>
	{{end}}

	<p style="color:#666;font-size:13px;">
		This link allows up to {{.MaxDownloads}} downloads and expires {{.ExpiresAt}}.
		{{if .Watermarked}}Your copy carries a unique watermark tied to your order.{{end}}
	</p>

	<p style="color:#999;font-size:12px;">Questions? Contact {{.SupportEmail}}.</p>
</body>
</html>
`))

type activationEmailData struct {
	ProductName string
	DeviceID    string
	Platform    string
	IP          string
	ActivatedAt string
}

var activationEmailTmpl = template.Must(template.New("activation").Parse(`
<html>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
	<h2>New device activated</h2>
	<p>Your license for <strong>{{.ProductName}}</strong> was just activated on a new device.</p>
	<ul style="color:#444;">
		<li>Device: {{.DeviceID}}</li>
		<li>Platform: {{.Platform}}</li>
		<li>IP address: {{.IP}}</li>
		<li>Time: {{.ActivatedAt}}</li>
	</ul>
	<p style="color:#666;font-size:13px;">If this was not you, deactivate the device from your account or contact support.</p>
</body>
</html>
`))

// SendDeliveryEmail mails the download link, access code and license key to
// the customer after fulfillment.
func (s *NotificationService) SendDeliveryEmail(order *models.Order, token *models.DownloadToken, accessCode string, license *models.License) error {
	data := deliveryEmailData{
		ProductName:   order.ProductName,
		DownloadURL:   fmt.Sprintf("%s/api/v1/download/%s", s.baseURL, token.Token),
		AccessCode:    accessCode,
		MaxDownloads:  token.MaxDownloads,
		ExpiresAt:     token.ExpiresAt.Format("Jan 2, 2006 at 15:04 MST"),
		Watermarked:   token.HasWatermark(),
		SupportEmail:  s.cfg.FromEmail,
		CustomerEmail: order.CustomerEmail,
	}
	if license != nil {
		data.LicenseKey = license.LicenseKey
	}

	var body bytes.Buffer
	if err := deliveryEmailTmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("failed to render delivery email: %w", err)
	}

	subject := fmt.Sprintf("Your download is ready: %s", order.ProductName)
	return s.send(order.CustomerEmail, subject, body.String())
}

// SendActivationEmail notifies the customer that a new device was activated
// on their license.
func (s *NotificationService) SendActivationEmail(license *models.License, activation *models.Activation, productName string) error {
	data := activationEmailData{
		ProductName: productName,
		DeviceID:    activation.DeviceID,
		Platform:    activation.DeviceInfo.Platform,
		IP:          activation.DeviceInfo.IP,
		ActivatedAt: activation.ActivatedAt.Format("Jan 2, 2006 at 15:04 MST"),
	}

	var body bytes.Buffer
	if err := activationEmailTmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("failed to render activation email: %w", err)
	}

	return s.send(license.CustomerEmail, "New device activated on your license", body.String())
}

func (s *NotificationService) send(to, subject, htmlBody string) error {
	if s.cfg.SMTPUsername == "" {
		s.logger.WithField("to", to).Info("SMTP not configured, skipping email")
		return nil
	}

	from := fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.FromEmail)
	msg := strings.Join([]string{
		"From: " + from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
		"",
		htmlBody,
	}, "\r\n")

	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	addr := s.cfg.SMTPHost + ":" + s.cfg.SMTPPort

	if err := smtp.SendMail(addr, auth, s.cfg.FromEmail, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}

	s.logger.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("Email sent")
	return nil
}
