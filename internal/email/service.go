// Package email sends transactional mail over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

// ErrNotConfigured is returned when sending without SMTP settings.
var ErrNotConfigured = errors.New("smtp not configured")

// Config holds the SMTP settings. Leaving Host, Port, or From empty
// disables sending and IsConfigured reports false.
type Config struct {
	Host      string
	Port      string
	Username  string
	Password  string
	From      string
	FromName  string
	EnableTLS bool
}

type Service struct {
	config Config
	server string
	auth   smtp.Auth
}

func NewService(config Config) *Service {
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   smtp.PlainAuth("", config.Username, config.Password, config.Host),
	}
}

// IsConfigured reports whether outgoing mail can be sent.
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendEmail sends a plain-text message.
func (s *Service) SendEmail(to []string, subject, body string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}

	var msg bytes.Buffer
	writeHeader(&msg, "To", strings.Join(to, ", "))
	writeHeader(&msg, "From", s.fromHeader())
	writeHeader(&msg, "Subject", subject)
	writeHeader(&msg, "Content-Type", "text/plain; charset=UTF-8")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg.Bytes())
}

// SendHTMLEmail sends a multipart/alternative message with a plain-text
// fallback part.
func (s *Service) SendHTMLEmail(to []string, subject, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}

	const boundary = "boundary-ideahub"

	var msg bytes.Buffer
	writeHeader(&msg, "To", strings.Join(to, ", "))
	writeHeader(&msg, "From", s.fromHeader())
	writeHeader(&msg, "Subject", subject)
	writeHeader(&msg, "MIME-Version", "1.0")
	writeHeader(&msg, "Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", boundary))
	msg.WriteString("\r\n")

	writePart(&msg, boundary, "text/plain; charset=UTF-8", "Please view this email in an HTML-capable email client.")
	writePart(&msg, boundary, "text/html; charset=UTF-8", htmlBody)
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg.Bytes())
}

func (s *Service) fromHeader() string {
	if s.config.FromName != "" {
		return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	return s.config.From
}

func writeHeader(msg *bytes.Buffer, name, value string) {
	fmt.Fprintf(msg, "%s: %s\r\n", name, value)
}

func writePart(msg *bytes.Buffer, boundary, contentType, body string) {
	fmt.Fprintf(msg, "--%s\r\n", boundary)
	writeHeader(msg, "Content-Type", contentType)
	msg.WriteString("\r\n")
	msg.WriteString(body)
	msg.WriteString("\r\n\r\n")
}

type VerificationData struct {
	AppName         string
	UserName        string
	VerificationURL string
}

type PasswordResetData struct {
	AppName  string
	UserName string
	ResetURL string
}

type InvitationData struct {
	AppName   string
	IdeaTitle string
	RoleName  string
	InviteURL string
}

// SendVerificationEmail delivers the signup confirmation link.
func (s *Service) SendVerificationEmail(to, userName, verificationURL string) error {
	data := VerificationData{
		AppName:         "IdeaHub",
		UserName:        userName,
		VerificationURL: verificationURL,
	}

	html, err := renderTemplate(verificationEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render verification template: %w", err)
	}
	return s.SendHTMLEmail([]string{to}, "Verify your IdeaHub account", html)
}

// SendPasswordResetEmail delivers the reset link for a requested reset.
func (s *Service) SendPasswordResetEmail(to, userName, resetURL string) error {
	data := PasswordResetData{
		AppName:  "IdeaHub",
		UserName: userName,
		ResetURL: resetURL,
	}

	html, err := renderTemplate(passwordResetEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render password reset template: %w", err)
	}
	return s.SendHTMLEmail([]string{to}, "Reset your IdeaHub password", html)
}

// SendAssignmentInvitation tells an address without an account that it has
// been assigned a triage role on an idea. The assignment is claimed
// automatically when that address registers.
func (s *Service) SendAssignmentInvitation(to, ideaTitle, roleName, inviteURL string) error {
	data := InvitationData{
		AppName:   "IdeaHub",
		IdeaTitle: ideaTitle,
		RoleName:  roleName,
		InviteURL: inviteURL,
	}

	subject := fmt.Sprintf("You have been assigned as %s on IdeaHub", roleName)
	html, err := renderTemplate(invitationEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render invitation template: %w", err)
	}
	return s.SendHTMLEmail([]string{to}, subject, html)
}

func renderTemplate(tmpl string, data any) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const verificationEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Verify your {{.AppName}} account</title>
    <style>
        body { margin: 0; padding: 0; background: #f4f5f7; font-family: 'Helvetica Neue', Arial, sans-serif; line-height: 1.5; color: #1f2933; }
        .card { max-width: 560px; margin: 24px auto; background: #ffffff; border-radius: 8px; padding: 32px; }
        .brand { font-size: 20px; font-weight: 700; color: #4f46e5; margin-bottom: 24px; }
        .cta { display: inline-block; padding: 10px 28px; background: #4f46e5; color: #ffffff; text-decoration: none; border-radius: 6px; font-weight: 600; }
        .fallback { font-size: 13px; color: #4f46e5; word-break: break-all; }
        .meta { margin-top: 28px; border-top: 1px solid #e4e7eb; padding-top: 16px; font-size: 12px; color: #7b8794; }
    </style>
</head>
<body>
    <div class="card">
        <div class="brand">{{.AppName}}</div>

        <h2>Welcome, {{.UserName}}!</h2>

        <p>Thanks for joining {{.AppName}}. Confirm your email address to activate your account.</p>

        <p><a href="{{.VerificationURL}}" class="cta">Verify Email Address</a></p>

        <p>If the button does not work, open this link directly:</p>
        <p class="fallback">{{.VerificationURL}}</p>

        <p>This verification link will expire in 24 hours.</p>

        <div class="meta">
            <p>If you didn't create an account with {{.AppName}}, you can safely ignore this email.</p>
        </div>
    </div>
</body>
</html>`

const passwordResetEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Reset your {{.AppName}} password</title>
    <style>
        body { margin: 0; padding: 0; background: #f4f5f7; font-family: 'Helvetica Neue', Arial, sans-serif; line-height: 1.5; color: #1f2933; }
        .card { max-width: 560px; margin: 24px auto; background: #ffffff; border-radius: 8px; padding: 32px; }
        .brand { font-size: 20px; font-weight: 700; color: #4f46e5; margin-bottom: 24px; }
        .cta { display: inline-block; padding: 10px 28px; background: #4f46e5; color: #ffffff; text-decoration: none; border-radius: 6px; font-weight: 600; }
        .fallback { font-size: 13px; color: #4f46e5; word-break: break-all; }
        .meta { margin-top: 28px; border-top: 1px solid #e4e7eb; padding-top: 16px; font-size: 12px; color: #7b8794; }
        .notice { background: #fffbea; border-left: 4px solid #f0b429; padding: 10px 14px; font-size: 14px; }
    </style>
</head>
<body>
    <div class="card">
        <div class="brand">{{.AppName}}</div>

        <h2>Password Reset Request</h2>

        <p>Hi {{.UserName}},</p>

        <p>Someone asked to reset the password for your account. Use the button below to choose a new one:</p>

        <p><a href="{{.ResetURL}}" class="cta">Reset Password</a></p>

        <p>If the button does not work, open this link directly:</p>
        <p class="fallback">{{.ResetURL}}</p>

        <div class="notice">
            <strong>Important:</strong> This reset link will expire in 1 hour.
        </div>

        <div class="meta">
            <p>If you didn't request a password reset, you can safely ignore this email. Your password will remain unchanged.</p>
        </div>
    </div>
</body>
</html>`

const invitationEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.AppName}} assignment</title>
    <style>
        body { margin: 0; padding: 0; background: #f4f5f7; font-family: 'Helvetica Neue', Arial, sans-serif; line-height: 1.5; color: #1f2933; }
        .card { max-width: 560px; margin: 24px auto; background: #ffffff; border-radius: 8px; padding: 32px; }
        .brand { font-size: 20px; font-weight: 700; color: #4f46e5; margin-bottom: 24px; }
        .cta { display: inline-block; padding: 10px 28px; background: #4f46e5; color: #ffffff; text-decoration: none; border-radius: 6px; font-weight: 600; }
        .fallback { font-size: 13px; color: #4f46e5; word-break: break-all; }
        .meta { margin-top: 28px; border-top: 1px solid #e4e7eb; padding-top: 16px; font-size: 12px; color: #7b8794; }
        .idea-box { background: #eef2ff; border-radius: 6px; padding: 12px 16px; font-weight: 600; }
    </style>
</head>
<body>
    <div class="card">
        <div class="brand">{{.AppName}}</div>

        <h2>You have a new assignment</h2>

        <p>An administrator assigned you as <strong>{{.RoleName}}</strong> for:</p>

        <div class="idea-box">{{.IdeaTitle}}</div>

        <p>Create an account with this email address and the assignment will be waiting for you.</p>

        <p><a href="{{.InviteURL}}" class="cta">Join {{.AppName}}</a></p>

        <p>If the button does not work, open this link directly:</p>
        <p class="fallback">{{.InviteURL}}</p>

        <div class="meta">
            <p>If you believe this was sent in error, you can safely ignore this email.</p>
        </div>
    </div>
</body>
</html>`
