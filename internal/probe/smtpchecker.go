package probe

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

const smtpHello = "sitewatch.invalid"

// SMTPChecker speaks the protocol by hand: greeting, EHLO, optionally
// STARTTLS followed by a second EHLO over the upgraded channel, then QUIT.
// No credentials are ever sent.
type SMTPChecker struct {
	Cfg       Config
	TLSConfig *tls.Config // overridden in tests; nil = verify against SMTPHost
}

func (c *SMTPChecker) Check(ctx context.Context, site *domain.Site, now time.Time) domain.Result {
	cctx, cancel := context.WithTimeout(ctx, c.Cfg.SMTPTimeout)
	defer cancel()

	addr := net.JoinHostPort(site.SMTPHost, strconv.Itoa(site.SMTPPort))
	deadline, _ := cctx.Deadline()
	tlsCfg := c.tlsConfig(site.SMTPHost)

	start := time.Now()

	var (
		conn net.Conn
		err  error
	)
	if site.SMTPSecurity == domain.SMTPSecuritySMTPS {
		td := &tls.Dialer{Config: tlsCfg}
		conn, err = td.DialContext(cctx, "tcp", addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(cctx, "tcp", addr)
	}
	if err != nil {
		_, msg := classifyErr(err)
		return down(now, 0, time.Since(start), msg)
	}
	defer conn.Close()
	_ = conn.SetDeadline(deadline)

	sess := smtpx.NewSession(conn)

	code, _, err := sess.ReadReply()
	if err != nil {
		_, msg := classifyErr(err)
		return down(now, 0, time.Since(start), msg)
	}
	if code != 220 {
		_ = sess.Quit()
		return down(now, code, time.Since(start),
			failMsg(ClassProtocolMismatch, fmt.Sprintf("unexpected greeting %d", code)))
	}

	code, ext, err := sess.Ehlo(smtpHello)
	if err != nil {
		_, msg := classifyErr(err)
		return down(now, 0, time.Since(start), msg)
	}
	if code != 250 {
		_ = sess.Quit()
		return down(now, code, time.Since(start),
			failMsg(ClassProtocolMismatch, fmt.Sprintf("EHLO rejected with %d", code)))
	}

	if site.SMTPSecurity == domain.SMTPSecurityStartTLS {
		if _, ok := ext["STARTTLS"]; !ok {
			_ = sess.Quit()
			return down(now, 0, time.Since(start),
				failMsg(ClassTLSError, "server does not advertise STARTTLS"))
		}
		if err := sess.StartTLS(tlsCfg); err != nil {
			return down(now, 0, time.Since(start), failMsg(ClassTLSError, err.Error()))
		}
		// The upgraded channel must accept EHLO again before the session
		// counts as healthy.
		code, _, err = sess.Ehlo(smtpHello)
		if err != nil {
			return down(now, 0, time.Since(start),
				failMsg(ClassTLSError, "EHLO after STARTTLS failed: "+err.Error()))
		}
		if code != 250 {
			_ = sess.Quit()
			return down(now, code, time.Since(start),
				failMsg(ClassTLSError, fmt.Sprintf("EHLO after STARTTLS rejected with %d", code)))
		}
	}

	_ = sess.Quit()
	elapsed := time.Since(start)

	status, msg := c.Cfg.classifyLatency("smtp session ok", elapsed)
	return up(now, status, 250, elapsed, msg)
}

func (c *SMTPChecker) tlsConfig(host string) *tls.Config {
	if c.TLSConfig != nil {
		return c.TLSConfig
	}
	return &tls.Config{ServerName: host}
}
