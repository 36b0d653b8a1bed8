package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"
)

// FailureClass is the closed taxonomy every checker resolves its failure
// into. The class token leads the result message so downstream consumers can
// match on it.
type FailureClass string

const (
	ClassTimeout            FailureClass = "timeout"
	ClassConnectionRefused  FailureClass = "connection_refused"
	ClassConnectionReset    FailureClass = "connection_reset"
	ClassDNSFailure         FailureClass = "dns_failure"
	ClassTLSError           FailureClass = "tls_error"
	ClassNetworkUnreachable FailureClass = "network_unreachable"
	ClassProtocolMismatch   FailureClass = "protocol_mismatch"
	ClassContentMismatch    FailureClass = "content_mismatch"
	ClassUnexpectedStatus   FailureClass = "unexpected_status"
	ClassGenericNetwork     FailureClass = "generic_network_error"
)

func failMsg(class FailureClass, detail string) string {
	if detail == "" {
		return string(class)
	}
	return fmt.Sprintf("%s: %s", class, detail)
}

// classifyErr maps a transport error onto the taxonomy. Typed errors are
// preferred; substring matching is the fallback for errors that arrive as
// flattened strings (wrapped url.Error text and the like).
func classifyErr(err error) (FailureClass, string) {
	if err == nil {
		return ClassGenericNetwork, failMsg(ClassGenericNetwork, "")
	}

	var de *net.DNSError
	if errors.As(err, &de) {
		kind := dnsErrKind(de)
		return ClassDNSFailure, failMsg(ClassDNSFailure, kind)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout, failMsg(ClassTimeout, "no response within deadline")
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ClassTimeout, failMsg(ClassTimeout, "no response within deadline")
	}

	var (
		cve *tls.CertificateVerificationError
		rhe tls.RecordHeaderError
		ue  x509.UnknownAuthorityError
		he  x509.HostnameError
		ce  x509.CertificateInvalidError
	)
	if errors.As(err, &cve) || errors.As(err, &rhe) || errors.As(err, &ue) ||
		errors.As(err, &he) || errors.As(err, &ce) {
		return ClassTLSError, failMsg(ClassTLSError, err.Error())
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return ClassConnectionRefused, failMsg(ClassConnectionRefused, "")
	case errors.Is(err, syscall.ECONNRESET):
		return ClassConnectionReset, failMsg(ClassConnectionReset, "")
	case errors.Is(err, syscall.ENETUNREACH), errors.Is(err, syscall.EHOSTUNREACH):
		return ClassNetworkUnreachable, failMsg(ClassNetworkUnreachable, "")
	}

	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "timeout") || strings.Contains(s, "deadline exceeded"):
		return ClassTimeout, failMsg(ClassTimeout, "no response within deadline")
	case strings.Contains(s, "tls") || strings.Contains(s, "certificate") || strings.Contains(s, "x509"):
		return ClassTLSError, failMsg(ClassTLSError, err.Error())
	case strings.Contains(s, "connection refused"):
		return ClassConnectionRefused, failMsg(ClassConnectionRefused, "")
	case strings.Contains(s, "connection reset"):
		return ClassConnectionReset, failMsg(ClassConnectionReset, "")
	case strings.Contains(s, "unreachable"):
		return ClassNetworkUnreachable, failMsg(ClassNetworkUnreachable, "")
	case strings.Contains(s, "no such host"):
		return ClassDNSFailure, failMsg(ClassDNSFailure, "NXDOMAIN")
	default:
		return ClassGenericNetwork, failMsg(ClassGenericNetwork, err.Error())
	}
}

func dnsErrKind(de *net.DNSError) string {
	switch {
	case de.IsNotFound:
		return "NXDOMAIN"
	case de.IsTemporary || de.Timeout():
		return "SERVFAIL"
	default:
		return "NODATA"
	}
}

// hostResolver is the side-channel lookup used to disambiguate transport
// errors. Swappable in tests.
type hostResolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

var systemResolver hostResolver = &net.Resolver{}

// disambiguateTimeout bounds the side-channel lookups independently of the
// probe's own deadline, which may already be exhausted by the time the
// original error arrives.
const disambiguateTimeout = 2 * time.Second

// disambiguate decides whether a failed probe actually failed at the DNS
// layer. It races A and AAAA lookups for the same hostname on a fresh
// deadline: if either resolves, the original error stands (classified
// as-is); if both fail with a definitive DNS answer, the DNS failure kind
// wins. Lookups that themselves time out or get cancelled prove nothing
// about the hostname, so they never override the original classification.
func disambiguate(ctx context.Context, r hostResolver, host string, orig error) (FailureClass, string) {
	if r == nil {
		r = systemResolver
	}
	if host == "" {
		return classifyErr(orig)
	}

	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disambiguateTimeout)
	defer cancel()

	type lookup struct {
		ips []net.IP
		err error
	}
	ch := make(chan lookup, 2)
	for _, network := range []string{"ip4", "ip6"} {
		go func(network string) {
			ips, err := r.LookupIP(lctx, network, host)
			ch <- lookup{ips: ips, err: err}
		}(network)
	}

	var (
		dnsErr   *net.DNSError
		sawEmpty bool
	)
	for i := 0; i < 2; i++ {
		l := <-ch
		if l.err == nil {
			if len(l.ips) > 0 {
				return classifyErr(orig)
			}
			sawEmpty = true
			continue
		}
		if errors.Is(l.err, context.DeadlineExceeded) || errors.Is(l.err, context.Canceled) {
			continue
		}
		var de *net.DNSError
		if errors.As(l.err, &de) {
			if de.Timeout() {
				continue
			}
			if dnsErr == nil {
				dnsErr = de
			}
		}
	}

	if dnsErr != nil {
		return ClassDNSFailure, failMsg(ClassDNSFailure, dnsErrKind(dnsErr))
	}
	if sawEmpty {
		return ClassDNSFailure, failMsg(ClassDNSFailure, "NODATA")
	}
	return classifyErr(orig)
}
