package utils

import (
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/Lakshima2000/paddyHealth-backend/config"
)

// ErrMailNotConfigured is returned when no SMTP server or sender is configured.
var ErrMailNotConfigured = errors.New("smtp not configured")

// WelcomeMail renders the message sent after a successful registration.
func WelcomeMail(username string) (subject, body string) {
	return "Welcome to Rice Leaf Disease Detection",
		fmt.Sprintf("Welcome %s! Thank you for registering with our service.", username)
}

// SendMail sends a plain text email using the MAIL_* settings.
func SendMail(to, subject, body string) error {
	cfg := config.Get()
	if cfg.MailServer == "" || cfg.MailFrom == "" {
		return ErrMailNotConfigured
	}
	addr := net.JoinHostPort(cfg.MailServer, strconv.Itoa(cfg.MailPort))
	auth := smtp.PlainAuth("", cfg.MailUsername, cfg.MailPassword, cfg.MailServer)
	msg := buildMessage(cfg.MailFromName, cfg.MailFrom, to, subject, body)

	if !cfg.MailUseTLS {
		return smtp.SendMail(addr, auth, cfg.MailFrom, []string{to}, msg)
	}

	// STARTTLS with timeouts
	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		return err
	}
	_ = conn.SetDeadline(time.Now().Add(15 * time.Second))
	c, err := smtp.NewClient(conn, cfg.MailServer)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: cfg.MailServer}); err != nil {
			return err
		}
	}
	if cfg.MailUsername != "" {
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	if err := c.Mail(cfg.MailFrom); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	wc, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write(msg); err != nil {
		_ = wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildMessage(fromName, from, to, subject, body string) []byte {
	fromHeader := from
	if fromName != "" {
		fromHeader = fmt.Sprintf("%s <%s>", encodeRFC2047(fromName), from)
	}
	var b strings.Builder
	// fixed header order keeps messages diffable in tests
	for _, h := range [][2]string{
		{"From", fromHeader},
		{"To", to},
		{"Subject", encodeRFC2047(subject)},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/plain; charset=UTF-8"},
	} {
		fmt.Fprintf(&b, "%s: %s\r\n", h[0], h[1])
	}
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// encodeRFC2047 encodes a header value when it contains non-ASCII text
func encodeRFC2047(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] >= 128 {
			return "=?UTF-8?B?" + base64.StdEncoding.EncodeToString([]byte(s)) + "?="
		}
	}
	return s
}
