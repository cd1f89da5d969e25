// Package mail renders the account emails and delivers them.
package mail

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	texttemplate "text/template"
)

// Message is a rendered email ready for delivery.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// Sender delivers a message. Implementations may deliver synchronously or
// hand the message to a queue.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

const (
	SubjectVerification  = "Email Verification Link"
	SubjectPasswordReset = "Password Reset Token"
)

type templateData struct {
	Subject   string
	FirstName string
	Intro     string
	Action    string
	URL       string
	Footer    string
}

var htmlLayout = htmltemplate.Must(htmltemplate.New("layout").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>{{.Subject}}</title>
  <style>
    body { font-family: Arial, sans-serif; background-color: #f4f4f4; margin: 0; padding: 0; }
    .container { max-width: 600px; margin: 20px auto; padding: 20px; background-color: #ffffff; border-radius: 8px; }
    .header { text-align: center; background-color: #007BFF; padding: 20px; border-radius: 8px 8px 0 0; color: white; }
    .content { padding: 20px; line-height: 1.6; }
    .btn { display: inline-block; padding: 12px 24px; color: #ffffff; background-color: #007BFF; text-decoration: none; border-radius: 5px; font-weight: bold; }
    .footer { margin-top: 20px; text-align: center; color: #888888; font-size: 12px; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header"><h1>{{.Subject}}</h1></div>
    <div class="content">
      <p>Hi{{if .FirstName}} {{.FirstName}}{{end}},</p>
      <p>{{.Intro}}</p>
      <a href="{{.URL}}" class="btn">{{.Action}}</a>
    </div>
    <div class="footer"><p>{{.Footer}}</p></div>
  </div>
</body>
</html>
`))

var textLayout = texttemplate.Must(texttemplate.New("layout").Parse(`Hi{{if .FirstName}} {{.FirstName}}{{end}},

{{.Intro}}

{{.Action}}: {{.URL}}

{{.Footer}}
`))

// Verification renders the email that completes a signup.
func Verification(to, firstName, url string) (Message, error) {
	return render(to, templateData{
		Subject:   SubjectVerification,
		FirstName: firstName,
		Intro:     "Welcome to SchoolHub! Please confirm your email address to finish creating your account. The link is valid for a few minutes.",
		Action:    "Verify Email",
		URL:       url,
		Footer:    "If you did not request this, please ignore this email.",
	})
}

// PasswordReset renders the email carrying a password reset link.
func PasswordReset(to, firstName, url string) (Message, error) {
	return render(to, templateData{
		Subject:   SubjectPasswordReset,
		FirstName: firstName,
		Intro:     "Forgot your password? Use the link below to choose a new one. The link is valid for a few minutes.",
		Action:    "Reset Password",
		URL:       url,
		Footer:    "If you didn't forget your password, please ignore this email.",
	})
}

func render(to string, data templateData) (Message, error) {
	var html, text bytes.Buffer
	if err := htmlLayout.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("rendering html body: %w", err)
	}
	if err := textLayout.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("rendering text body: %w", err)
	}
	return Message{
		To:      to,
		Subject: data.Subject,
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

// LogSender writes messages to the log instead of delivering them. It is
// used in development when no SMTP server is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "email not delivered, no SMTP server configured",
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Text,
	)
	return nil
}
