package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/smtpx"
)

// EmailSMTP delivers mail over a hand-rolled SMTP session, same handshake
// discipline as the SMTP checker but with AUTH and an actual message.
type EmailSMTP struct {
	Host     string
	Port     int
	Security domain.SMTPSecurity
	User     string
	Pass     string
	From     string
	To       string

	Timeout   time.Duration
	TLSConfig *tls.Config // overridden in tests
}

func (e *EmailSMTP) Name() string { return "email_smtp" }

func (e *EmailSMTP) Send(ctx context.Context, msg Message) error {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr := net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
	tlsCfg := e.TLSConfig
	if tlsCfg == nil {
		tlsCfg = &tls.Config{ServerName: e.Host}
	}

	var (
		conn net.Conn
		err  error
	)
	if e.Security == domain.SMTPSecuritySMTPS {
		td := &tls.Dialer{Config: tlsCfg}
		conn, err = td.DialContext(cctx, "tcp", addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(cctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	if deadline, ok := cctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	sess := smtpx.NewSession(conn)
	code, greeting, err := sess.ReadReply()
	if err != nil {
		return err
	}
	if code != 220 {
		return fmt.Errorf("unexpected greeting: %d %s", code, greeting)
	}

	code, ext, err := sess.Ehlo("sitewatch.invalid")
	if err != nil {
		return err
	}
	if code != 250 {
		return fmt.Errorf("EHLO rejected with %d", code)
	}

	if e.Security == domain.SMTPSecurityStartTLS {
		if _, ok := ext["STARTTLS"]; !ok {
			return fmt.Errorf("server does not advertise STARTTLS")
		}
		if err := sess.StartTLS(tlsCfg); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
		if code, _, err = sess.Ehlo("sitewatch.invalid"); err != nil {
			return fmt.Errorf("EHLO after STARTTLS: %w", err)
		}
		if code != 250 {
			return fmt.Errorf("EHLO after STARTTLS rejected with %d", code)
		}
	}

	if e.User != "" {
		if err := sess.AuthPlain(e.User, e.Pass); err != nil {
			return err
		}
	}

	if err := sess.Mail(e.From); err != nil {
		return err
	}
	if err := sess.Rcpt(e.To); err != nil {
		return err
	}

	body := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		e.From, e.To, msg.Title, msg.Text,
	)
	if err := sess.Data([]byte(body)); err != nil {
		return err
	}
	return sess.Quit()
}
