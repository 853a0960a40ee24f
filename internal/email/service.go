// Package email provides email sending capabilities via SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

// Config holds SMTP configuration
type Config struct {
	Host      string
	Port      string
	Username  string
	Password  string
	From      string
	FromName  string
	EnableTLS bool
}

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
}

// NewService creates a new email service
func NewService(config Config) *Service {
	auth := smtp.PlainAuth("", config.Username, config.Password, config.Host)

	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendEmail sends a plain text email
func (s *Service) SendEmail(to []string, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := []byte(fmt.Sprintf(
		"To: %s\r\n"+
			"From: %s\r\n"+
			"Subject: %s\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		strings.Join(to, ", "),
		from,
		subject,
		body,
	))

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg)
}

// SendHTMLEmail sends an HTML email
func (s *Service) SendHTMLEmail(to []string, subject, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	// Simple multipart message
	boundary := "boundary-oficio"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	// Plain text part (fallback)
	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "Please view this email in an HTML-capable email client.\r\n")
	fmt.Fprintf(&msg, "\r\n")

	// HTML part
	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg.Bytes())
}

// VerificationData holds data for the verification email template
type VerificationData struct {
	AppName         string
	UserName        string
	VerificationURL string
}

// EngagementData holds data for lifecycle notification emails
type EngagementData struct {
	AppName  string
	UserName string
	Category string
	Detail   string
	URL      string
}

// SendVerificationEmail sends an email verification email
func (s *Service) SendVerificationEmail(to, userName, verificationURL string) error {
	data := VerificationData{
		AppName:         "Oficio",
		UserName:        userName,
		VerificationURL: verificationURL,
	}

	subject := "Verifica tu cuenta de Oficio"
	html, err := renderTemplate(verificationEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render verification template: %w", err)
	}

	return s.SendHTMLEmail([]string{to}, subject, html)
}

// SendOfferAcceptedEmail tells a professional their offer won the job.
func (s *Service) SendOfferAcceptedEmail(to, userName, category, requestURL string) error {
	data := EngagementData{
		AppName:  "Oficio",
		UserName: userName,
		Category: category,
		Detail:   "Tu presupuesto ha sido aceptado. Ponte en contacto con el cliente para acordar la fecha de inicio.",
		URL:      requestURL,
	}

	subject := "Presupuesto aceptado: " + category
	html, err := renderTemplate(engagementEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render offer accepted template: %w", err)
	}

	return s.SendHTMLEmail([]string{to}, subject, html)
}

// SendOfferRejectedEmail tells a professional their offer was declined.
func (s *Service) SendOfferRejectedEmail(to, userName, category, reason, requestURL string) error {
	detail := "El cliente ha rechazado tu presupuesto."
	if reason != "" {
		detail += " Motivo: " + reason
	}
	data := EngagementData{
		AppName:  "Oficio",
		UserName: userName,
		Category: category,
		Detail:   detail,
		URL:      requestURL,
	}

	subject := "Presupuesto rechazado: " + category
	html, err := renderTemplate(engagementEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render offer rejected template: %w", err)
	}

	return s.SendHTMLEmail([]string{to}, subject, html)
}

// SendJobFinishedEmail asks the client to confirm the work is done.
func (s *Service) SendJobFinishedEmail(to, userName, category, requestURL string) error {
	data := EngagementData{
		AppName:  "Oficio",
		UserName: userName,
		Category: category,
		Detail:   "El profesional ha marcado el trabajo como terminado. Entra para confirmarlo y dejar tu valoración.",
		URL:      requestURL,
	}

	subject := "Trabajo terminado: " + category
	html, err := renderTemplate(engagementEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render job finished template: %w", err)
	}

	return s.SendHTMLEmail([]string{to}, subject, html)
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const verificationEmailTemplate = `<!DOCTYPE html>
<html lang="es">
<head>
    <meta charset="UTF-8">
    <title>Verifica tu cuenta de {{.AppName}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #0066cc; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; color: #0066cc; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>¡Bienvenido, {{.UserName}}!</h2>

    <p>Gracias por registrarte. Verifica tu dirección de correo para activar tu cuenta.</p>

    <p>
        <a href="{{.VerificationURL}}" class="button">Verificar correo</a>
    </p>

    <p>O copia y pega este enlace en tu navegador:</p>
    <p class="link">{{.VerificationURL}}</p>

    <p>Este enlace caduca en 24 horas.</p>

    <div class="footer">
        <p>Si no has creado una cuenta en {{.AppName}}, puedes ignorar este mensaje.</p>
    </div>
</body>
</html>`

const engagementEmailTemplate = `<!DOCTYPE html>
<html lang="es">
<head>
    <meta charset="UTF-8">
    <title>{{.Category}} — {{.AppName}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #0066cc; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; color: #0066cc; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Hola, {{.UserName}}</h2>

    <p><strong>{{.Category}}</strong></p>
    <p>{{.Detail}}</p>

    {{if .URL}}
    <p>
        <a href="{{.URL}}" class="button">Ver solicitud</a>
    </p>
    <p class="link">{{.URL}}</p>
    {{end}}

    <div class="footer">
        <p>Recibes este mensaje porque participas en una solicitud de {{.AppName}}.</p>
    </div>
</body>
</html>`
