// Package smtpx is a minimal hand-rolled SMTP conversation, shared by the
// SMTP checker and the email notifier. net/smtp hides the individual reply
// codes; the checker has to see and classify every one of them, so the wire
// dialect is spoken directly.
package smtpx

import (
	"bufio"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"strconv"
	"strings"
)

type Session struct {
	conn net.Conn
	r    *bufio.Reader
}

func NewSession(conn net.Conn) *Session {
	return &Session{conn: conn, r: bufio.NewReader(conn)}
}

// ReadReply reads one (possibly multiline) SMTP reply and returns its code
// and the joined text.
func (s *Session) ReadReply() (int, string, error) {
	var lines []string
	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			return 0, "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if len(line) < 3 {
			return 0, "", fmt.Errorf("short smtp reply %q", line)
		}
		code, err := strconv.Atoi(line[:3])
		if err != nil {
			return 0, "", fmt.Errorf("bad smtp reply %q", line)
		}
		if len(line) > 3 {
			lines = append(lines, line[4:])
		}
		if len(line) == 3 || line[3] == ' ' {
			return code, strings.Join(lines, "\n"), nil
		}
		// line[3] == '-': continuation
	}
}

func (s *Session) Cmd(format string, args ...any) (int, string, error) {
	if _, err := fmt.Fprintf(s.conn, format+"\r\n", args...); err != nil {
		return 0, "", err
	}
	return s.ReadReply()
}

// Ehlo sends EHLO and parses the advertised extensions (upper-cased keyword
// to parameter string). The greeting line itself is skipped.
func (s *Session) Ehlo(hello string) (int, map[string]string, error) {
	code, msg, err := s.Cmd("EHLO %s", hello)
	if err != nil {
		return 0, nil, err
	}
	ext := make(map[string]string)
	lines := strings.Split(msg, "\n")
	for i, line := range lines {
		if i == 0 {
			continue
		}
		kw, param, _ := strings.Cut(line, " ")
		ext[strings.ToUpper(kw)] = param
	}
	return code, ext, nil
}

// StartTLS sends STARTTLS and, on 220, upgrades the connection in place.
// The caller must EHLO again afterwards; the pre-upgrade extension list is void.
func (s *Session) StartTLS(cfg *tls.Config) error {
	code, msg, err := s.Cmd("STARTTLS")
	if err != nil {
		return err
	}
	if code != 220 {
		return fmt.Errorf("starttls refused: %d %s", code, msg)
	}
	tc := tls.Client(s.conn, cfg)
	if err := tc.Handshake(); err != nil {
		return err
	}
	s.conn = tc
	s.r = bufio.NewReader(tc)
	return nil
}

// AuthPlain performs AUTH PLAIN. Only used by the mailer; probes never
// transmit credentials.
func (s *Session) AuthPlain(user, pass string) error {
	tok := base64.StdEncoding.EncodeToString([]byte("\x00" + user + "\x00" + pass))
	code, msg, err := s.Cmd("AUTH PLAIN %s", tok)
	if err != nil {
		return err
	}
	if code != 235 {
		return fmt.Errorf("auth failed: %d %s", code, msg)
	}
	return nil
}

func (s *Session) Mail(from string) error { return s.expect(250, "MAIL FROM:<%s>", from) }
func (s *Session) Rcpt(to string) error   { return s.expect(250, "RCPT TO:<%s>", to) }

// Data sends the DATA command and the message body, dot-stuffed and
// terminated per RFC 5321.
func (s *Session) Data(body []byte) error {
	code, msg, err := s.Cmd("DATA")
	if err != nil {
		return err
	}
	if code != 354 {
		return fmt.Errorf("data refused: %d %s", code, msg)
	}
	text := strings.ReplaceAll(string(body), "\r\n.", "\r\n..")
	if _, err := fmt.Fprintf(s.conn, "%s\r\n.\r\n", text); err != nil {
		return err
	}
	code, msg, err = s.ReadReply()
	if err != nil {
		return err
	}
	if code != 250 {
		return fmt.Errorf("message rejected: %d %s", code, msg)
	}
	return nil
}

func (s *Session) expect(want int, format string, args ...any) error {
	code, msg, err := s.Cmd(format, args...)
	if err != nil {
		return err
	}
	if code != want {
		return fmt.Errorf("unexpected reply: %d %s", code, msg)
	}
	return nil
}

func (s *Session) Quit() error {
	_, _, err := s.Cmd("QUIT")
	return err
}

func (s *Session) Close() error { return s.conn.Close() }
