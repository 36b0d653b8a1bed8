package probe

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

func selfSignedServerTLS(t *testing.T) *tls.Config {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	cert := tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
	return &tls.Config{Certificates: []tls.Certificate{cert}}
}

type smtpScript struct {
	greeting      string // default "220 mock ESMTP"
	ehloExts      []string
	tlsConfig     *tls.Config // non-nil: honor STARTTLS with this config
	ehloAfterTLS  string      // reply to the post-upgrade EHLO; default "250 mock"
	rejectSession bool        // answer EHLO with 550
	onQuit        func()      // invoked when the client sends QUIT
}

// mockSMTP runs a single scripted SMTP session.
func mockSMTP(t *testing.T, script smtpScript) (host string, port int) {
	t.Helper()
	return byteServer(t, func(conn net.Conn) {
		greeting := script.greeting
		if greeting == "" {
			greeting = "220 mock ESMTP"
		}
		conn.Write([]byte(greeting + "\r\n"))

		r := bufio.NewReader(conn)
		upgraded := false
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			verb := strings.ToUpper(strings.Fields(strings.TrimSpace(line))[0])
			switch verb {
			case "EHLO", "HELO":
				switch {
				case script.rejectSession:
					conn.Write([]byte("550 not today\r\n"))
				case upgraded:
					reply := script.ehloAfterTLS
					if reply == "" {
						reply = "250 mock"
					}
					conn.Write([]byte(reply + "\r\n"))
				case len(script.ehloExts) > 0:
					// first 250 line is the server greeting, extensions follow
					conn.Write([]byte("250-mock\r\n"))
					for i, ext := range script.ehloExts {
						sep := "-"
						if i == len(script.ehloExts)-1 {
							sep = " "
						}
						conn.Write([]byte("250" + sep + ext + "\r\n"))
					}
				default:
					conn.Write([]byte("250 mock\r\n"))
				}
			case "STARTTLS":
				if script.tlsConfig == nil {
					conn.Write([]byte("454 TLS not available\r\n"))
					continue
				}
				conn.Write([]byte("220 2.0.0 ready to start TLS\r\n"))
				tc := tls.Server(conn, script.tlsConfig)
				if err := tc.Handshake(); err != nil {
					return
				}
				conn = tc
				r = bufio.NewReader(conn)
				upgraded = true
			case "QUIT":
				if script.onQuit != nil {
					script.onQuit()
				}
				conn.Write([]byte("221 bye\r\n"))
				return
			default:
				conn.Write([]byte("502 unimplemented\r\n"))
			}
		}
	})
}

func smtpSite(host string, port int, sec domain.SMTPSecurity) *domain.Site {
	return &domain.Site{ID: "m1", Type: domain.MonitorSMTP, SMTPHost: host, SMTPPort: port, SMTPSecurity: sec}
}

func TestSMTPChecker_PlainSession(t *testing.T) {
	host, port := mockSMTP(t, smtpScript{})
	chk := &SMTPChecker{Cfg: testCfg()}
	out := chk.Check(context.Background(), smtpSite(host, port, domain.SMTPSecurityNone), time.Now())
	if out.Status != domain.StatusOnline {
		t.Fatalf("want online, got %+v", out)
	}
	if out.StatusCode != 250 {
		t.Fatalf("want 250, got %d", out.StatusCode)
	}
}

func TestSMTPChecker_BadGreeting(t *testing.T) {
	host, port := mockSMTP(t, smtpScript{greeting: "554 go away"})
	chk := &SMTPChecker{Cfg: testCfg()}
	out := chk.Check(context.Background(), smtpSite(host, port, domain.SMTPSecurityNone), time.Now())
	if out.Status != domain.StatusOffline || !strings.Contains(out.Message, "protocol_mismatch") {
		t.Fatalf("got %+v", out)
	}
}

func TestSMTPChecker_EhloRejected(t *testing.T) {
	host, port := mockSMTP(t, smtpScript{rejectSession: true})
	chk := &SMTPChecker{Cfg: testCfg()}
	out := chk.Check(context.Background(), smtpSite(host, port, domain.SMTPSecurityNone), time.Now())
	if out.Status != domain.StatusOffline || !strings.Contains(out.Message, "protocol_mismatch") {
		t.Fatalf("got %+v", out)
	}
}

func TestSMTPChecker_FailedSessionStillQuits(t *testing.T) {
	// The session ends with QUIT even when the server misbehaves at the
	// protocol level.
	cases := []struct {
		name     string
		script   smtpScript
		security domain.SMTPSecurity
	}{
		{"bad greeting", smtpScript{greeting: "554 go away"}, domain.SMTPSecurityNone},
		{"ehlo rejected", smtpScript{rejectSession: true}, domain.SMTPSecurityNone},
		{"starttls not advertised", smtpScript{}, domain.SMTPSecurityStartTLS},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			quit := make(chan struct{}, 1)
			tc.script.onQuit = func() { quit <- struct{}{} }
			host, port := mockSMTP(t, tc.script)

			chk := &SMTPChecker{Cfg: testCfg()}
			out := chk.Check(context.Background(), smtpSite(host, port, tc.security), time.Now())
			if out.Status != domain.StatusOffline {
				t.Fatalf("want offline, got %+v", out)
			}
			select {
			case <-quit:
			case <-time.After(2 * time.Second):
				t.Fatal("session ended without QUIT")
			}
		})
	}
}

func TestSMTPChecker_StartTLSUpgrade(t *testing.T) {
	host, port := mockSMTP(t, smtpScript{
		ehloExts:  []string{"STARTTLS"},
		tlsConfig: selfSignedServerTLS(t),
	})
	chk := &SMTPChecker{
		Cfg:       testCfg(),
		TLSConfig: &tls.Config{InsecureSkipVerify: true},
	}
	out := chk.Check(context.Background(), smtpSite(host, port, domain.SMTPSecurityStartTLS), time.Now())
	if out.Status != domain.StatusOnline {
		t.Fatalf("want online after upgrade, got %+v", out)
	}
}

func TestSMTPChecker_StartTLSNotAdvertised(t *testing.T) {
	host, port := mockSMTP(t, smtpScript{}) // plain EHLO reply, no extensions
	chk := &SMTPChecker{Cfg: testCfg()}
	out := chk.Check(context.Background(), smtpSite(host, port, domain.SMTPSecurityStartTLS), time.Now())
	if out.Status != domain.StatusOffline {
		t.Fatalf("want offline, got %+v", out)
	}
	if !strings.Contains(out.Message, "tls_error") || !strings.Contains(out.Message, "advertise") {
		t.Fatalf("got %q", out.Message)
	}
}

func TestSMTPChecker_EhloAfterStartTLSRejected(t *testing.T) {
	// A server that upgrades but then refuses EHLO has not produced a healthy
	// encrypted session.
	host, port := mockSMTP(t, smtpScript{
		ehloExts:     []string{"STARTTLS"},
		tlsConfig:    selfSignedServerTLS(t),
		ehloAfterTLS: "550 nope",
	})
	chk := &SMTPChecker{
		Cfg:       testCfg(),
		TLSConfig: &tls.Config{InsecureSkipVerify: true},
	}
	out := chk.Check(context.Background(), smtpSite(host, port, domain.SMTPSecurityStartTLS), time.Now())
	if out.Status != domain.StatusOffline || !strings.Contains(out.Message, "tls_error") {
		t.Fatalf("got %+v", out)
	}
}

func TestSMTPChecker_UntrustedCertFailsStartTLS(t *testing.T) {
	host, port := mockSMTP(t, smtpScript{
		ehloExts:  []string{"STARTTLS"},
		tlsConfig: selfSignedServerTLS(t),
	})
	chk := &SMTPChecker{Cfg: testCfg()} // default verification, self-signed must fail
	out := chk.Check(context.Background(), smtpSite(host, port, domain.SMTPSecurityStartTLS), time.Now())
	if out.Status != domain.StatusOffline || !strings.Contains(out.Message, "tls_error") {
		t.Fatalf("got %+v", out)
	}
}

func TestSMTPChecker_SMTPS(t *testing.T) {
	serverTLS := selfSignedServerTLS(t)
	host, port := byteServer(t, func(conn net.Conn) {
		tc := tls.Server(conn, serverTLS)
		if err := tc.Handshake(); err != nil {
			return
		}
		tc.Write([]byte("220 mock ESMTP\r\n"))
		r := bufio.NewReader(tc)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasPrefix(strings.ToUpper(line), "QUIT") {
				tc.Write([]byte("221 bye\r\n"))
				return
			}
			tc.Write([]byte("250 mock\r\n"))
		}
	})

	chk := &SMTPChecker{
		Cfg:       testCfg(),
		TLSConfig: &tls.Config{InsecureSkipVerify: true},
	}
	out := chk.Check(context.Background(), smtpSite(host, port, domain.SMTPSecuritySMTPS), time.Now())
	if out.Status != domain.StatusOnline {
		t.Fatalf("want online, got %+v", out)
	}
}
