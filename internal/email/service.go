package email

import (
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

// Service handles email sending via SMTP
type Service struct {
	addr string
	host string
	from string
	auth smtp.Auth
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewService creates a new email service. Authentication is used only when user is set.
func NewService(host string, port int, user, password, from string) *Service {
	s := &Service{
		addr: net.JoinHostPort(host, strconv.Itoa(port)),
		host: host,
		from: from,
		send: smtp.SendMail,
	}
	if user != "" {
		s.auth = smtp.PlainAuth("", user, password, host)
	}
	return s
}

// SendReceipt sends the payment receipt for an order.
func (s *Service) SendReceipt(to string, r Receipt) error {
	body, err := BuildReceiptBody(r)
	if err != nil {
		return fmt.Errorf("render receipt: %w", err)
	}
	subject := fmt.Sprintf("Your receipt for order #%d", r.OrderID)
	return s.deliver(to, subject, body)
}

func (s *Service) deliver(to, subject, body string) error {
	if strings.ContainsAny(to, "\r\n") {
		return fmt.Errorf("invalid recipient %q", to)
	}
	return s.send(s.addr, s.auth, s.from, []string{to}, buildMessage(s.from, to, subject, body))
}

func buildMessage(from, to, subject, body string) []byte {
	return []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		from, to, subject, body))
}
