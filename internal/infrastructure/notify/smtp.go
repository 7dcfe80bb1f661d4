package notify

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"text/template"
	"time"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPNotifier sends plain-text mail for invite and reset notifications.
// Other kinds are ignored.
type SMTPNotifier struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPNotifier{cfg: cfg, send: smtp.SendMail}
}

var mailTemplates = map[domain.NotificationKind]*template.Template{
	domain.NotifyInvite: template.Must(template.New("invite").Parse(
		"Subject: You're invited\r\n" +
			"\r\n" +
			"Hi{{if .Name}} {{.Name}}{{end}},\r\n\r\n" +
			"Your account is ready. Set your password to get started:\r\n\r\n" +
			"{{.Link}}\r\n\r\n" +
			"This link expires {{.Expires}}.\r\n")),
	domain.NotifyPasswordReset: template.Must(template.New("reset").Parse(
		"Subject: Reset your password\r\n" +
			"\r\n" +
			"Hi{{if .Name}} {{.Name}}{{end}},\r\n\r\n" +
			"Use the link below to choose a new password:\r\n\r\n" +
			"{{.Link}}\r\n\r\n" +
			"This link expires {{.Expires}}. If you did not ask for a reset, ignore this message.\r\n")),
}

func (n *SMTPNotifier) Notify(ctx context.Context, msg domain.Notification) error {
	tmpl, ok := mailTemplates[msg.Kind]
	if !ok {
		return nil
	}
	body, err := renderMail(tmpl, n.cfg.From, msg)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))

	errc := make(chan error, 1)
	go func() { errc <- n.send(addr, auth, n.cfg.From, []string{msg.Email}, body) }()
	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("smtp send %s: %w", msg.Kind, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send %s: %w", msg.Kind, ctx.Err())
	}
}

func renderMail(tmpl *template.Template, from string, msg domain.Notification) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\nTo: %s\r\n", from, msg.Email)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n")
	err := tmpl.Execute(&buf, struct {
		Name    string
		Link    string
		Expires string
	}{msg.Name, msg.Link, msg.ExpiresAt.UTC().Format(time.RFC1123)})
	if err != nil {
		return nil, fmt.Errorf("render %s mail: %w", msg.Kind, err)
	}
	return buf.Bytes(), nil
}
