package channel

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"medremind/internal/model"
)

// EmailConfig configures the SMTP transport.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type emailSender struct {
	cfg  EmailConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmail(cfg EmailConfig) (Sender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("email host is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("email from address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &emailSender{cfg: cfg, send: smtp.SendMail}, nil
}

func (e *emailSender) Channel() model.Channel { return model.ChannelEmail }

func (e *emailSender) Send(ctx context.Context, to Recipient, p Payload) (Result, error) {
	if strings.TrimSpace(to.Email) == "" {
		return Result{Delivered: false, Detail: "recipient has no email address"}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	body, err := RenderEmail(to, p)
	if err != nil {
		return Result{}, err
	}

	msg := strings.Builder{}
	fmt.Fprintf(&msg, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to.Email)
	fmt.Fprintf(&msg, "Subject: %s\r\n", p.Title)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)
	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}
	if err := e.send(addr, auth, e.cfg.From, []string{to.Email}, []byte(msg.String())); err != nil {
		return Result{}, fmt.Errorf("smtp send: %w", err)
	}
	return Result{Delivered: true}, nil
}

var emailTmpl = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #333;">
  <h2>{{.Title}}</h2>
  <p>Hello{{if .Name}} {{.Name}}{{end}},</p>
  <p>{{.Message}}</p>
  {{if .Details}}
  <table cellpadding="4">
  {{range .Details}}<tr><td><b>{{.Key}}</b></td><td>{{.Value}}</td></tr>
  {{end}}</table>
  {{end}}
  <p style="color: #888; font-size: 12px;">Sent by MedRemind.</p>
</body>
</html>
`))

type emailDetail struct {
	Key   string
	Value string
}

// RenderEmail builds the HTML body. Metadata rows come out in key order
// so the output is deterministic.
func RenderEmail(to Recipient, p Payload) (string, error) {
	var details []emailDetail
	strs := p.Metadata.StringMap()
	for _, k := range p.Metadata.SortedKeys() {
		if v := strs[k]; v != "" {
			details = append(details, emailDetail{Key: k, Value: v})
		}
	}
	var out strings.Builder
	err := emailTmpl.Execute(&out, struct {
		Title   string
		Name    string
		Message string
		Details []emailDetail
	}{Title: p.Title, Name: to.Name, Message: p.Message, Details: details})
	if err != nil {
		return "", err
	}
	return out.String(), nil
}
