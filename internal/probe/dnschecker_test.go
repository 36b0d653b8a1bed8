package probe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

func dohServer(t *testing.T, resp dohResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "application/dns-json" {
			t.Errorf("want dns-json accept header, got %q", got)
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func dnsSite(server, name, rtype string) *domain.Site {
	return &domain.Site{
		ID:            "d1",
		Type:          domain.MonitorDNS,
		URL:           name,
		DNSServer:     server,
		DNSRecordType: rtype,
	}
}

func TestDNSChecker_ResolvesA(t *testing.T) {
	s := dohServer(t, dohResponse{Status: 0, Answer: []dohAnswer{
		{Name: "example.com", Type: 1, Data: "93.184.216.34"},
		{Name: "example.com", Type: 46, Data: "rrsig-noise"}, // filtered out
	}})
	defer s.Close()

	chk := NewDNSChecker(testCfg())
	out := chk.Check(context.Background(), dnsSite(s.URL, "example.com", "A"), time.Now())
	if out.Status != domain.StatusOnline {
		t.Fatalf("want online, got %+v", out)
	}
	if len(out.Records) != 1 || out.Records[0] != "93.184.216.34" {
		t.Fatalf("want filtered A records, got %v", out.Records)
	}
	if !strings.Contains(out.Message, "resolved") {
		t.Fatalf("got %q", out.Message)
	}
}

func TestDNSChecker_NXDomain(t *testing.T) {
	s := dohServer(t, dohResponse{Status: 3})
	defer s.Close()

	chk := NewDNSChecker(testCfg())
	out := chk.Check(context.Background(), dnsSite(s.URL, "nope.example.com", "A"), time.Now())
	if out.Status != domain.StatusOffline {
		t.Fatalf("want offline, got %+v", out)
	}
	if !strings.Contains(out.Message, "NXDOMAIN") {
		t.Fatalf("got %q", out.Message)
	}
}

func TestDNSChecker_ServFail(t *testing.T) {
	s := dohServer(t, dohResponse{Status: 2})
	defer s.Close()

	chk := NewDNSChecker(testCfg())
	out := chk.Check(context.Background(), dnsSite(s.URL, "example.com", "A"), time.Now())
	if out.Status != domain.StatusOffline || !strings.Contains(out.Message, "SERVFAIL") {
		t.Fatalf("got %+v", out)
	}
}

func TestDNSChecker_NoRecordsOfType(t *testing.T) {
	// NOERROR but no answers of the asked type is still a failure.
	s := dohServer(t, dohResponse{Status: 0, Answer: []dohAnswer{
		{Name: "example.com", Type: 1, Data: "93.184.216.34"},
	}})
	defer s.Close()

	chk := NewDNSChecker(testCfg())
	out := chk.Check(context.Background(), dnsSite(s.URL, "example.com", "AAAA"), time.Now())
	if out.Status != domain.StatusOffline || !strings.Contains(out.Message, "no records") {
		t.Fatalf("got %+v", out)
	}
}

func TestDNSChecker_ExpectedValueNormalization(t *testing.T) {
	// Trailing dot, quoting and case must not defeat the comparison.
	s := dohServer(t, dohResponse{Status: 0, Answer: []dohAnswer{
		{Name: "example.com", Type: 16, Data: `"V=SPF1 -ALL."`},
	}})
	defer s.Close()

	site := dnsSite(s.URL, "example.com", "TXT")
	site.DNSExpectedValue = "v=spf1 -all"
	chk := NewDNSChecker(testCfg())
	out := chk.Check(context.Background(), site, time.Now())
	if out.Status != domain.StatusOnline {
		t.Fatalf("normalized TXT should match, got %+v", out)
	}

	site.DNSExpectedValue = "v=spf1 ~all"
	out = chk.Check(context.Background(), site, time.Now())
	if out.Status != domain.StatusOffline || !strings.Contains(out.Message, "content_mismatch") {
		t.Fatalf("got %+v", out)
	}
}

func TestDNSChecker_ProviderShorthand(t *testing.T) {
	chk := NewDNSChecker(testCfg())
	if got := chk.endpoint("google"); got != "https://dns.google/resolve" {
		t.Fatalf("got %q", got)
	}
	if got := chk.endpoint("https://doh.example/q"); got != "https://doh.example/q" {
		t.Fatalf("got %q", got)
	}
	if got := chk.endpoint(""); got != chk.Cfg.DoHURL {
		t.Fatalf("got %q", got)
	}
}

func TestDNSChecker_EndpointHTTPError(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer s.Close()

	chk := NewDNSChecker(testCfg())
	out := chk.Check(context.Background(), dnsSite(s.URL, "example.com", "A"), time.Now())
	if out.Status != domain.StatusOffline || !strings.Contains(out.Message, "unexpected_status") {
		t.Fatalf("got %+v", out)
	}
}

func TestSummarize(t *testing.T) {
	if got := summarize([]string{"a", "b", "c", "d"}); got != "a, b, c, ..." {
		t.Fatalf("got %q", got)
	}
	if got := summarize([]string{"a"}); got != "a" {
		t.Fatalf("got %q", got)
	}
}
