package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// Well-known DNS-over-HTTPS providers accepted as site.DNSServer shorthands.
// Anything starting with http(s):// is used as a custom endpoint.
var dohProviders = map[string]string{
	"cloudflare": "https://cloudflare-dns.com/dns-query",
	"google":     "https://dns.google/resolve",
	"quad9":      "https://dns.quad9.net:5053/dns-query",
}

var recordTypeNums = map[string]int{
	"A": 1, "NS": 2, "CNAME": 5, "SOA": 6, "PTR": 12,
	"MX": 15, "TXT": 16, "AAAA": 28, "SRV": 33, "CAA": 257,
}

type DNSChecker struct {
	Client *http.Client
	Cfg    Config
}

func NewDNSChecker(cfg Config) *DNSChecker {
	return &DNSChecker{Client: &http.Client{}, Cfg: cfg}
}

type dohAnswer struct {
	Name string `json:"name"`
	Type int    `json:"type"`
	Data string `json:"data"`
}

type dohResponse struct {
	Status int         `json:"Status"`
	Answer []dohAnswer `json:"Answer"`
}

func (c *DNSChecker) Check(ctx context.Context, site *domain.Site, now time.Time) domain.Result {
	cctx, cancel := context.WithTimeout(ctx, c.Cfg.DNSTimeout)
	defer cancel()

	rtype := strings.ToUpper(site.DNSRecordType)
	if rtype == "" {
		rtype = "A"
	}

	endpoint := c.endpoint(site.DNSServer)
	q := url.Values{}
	q.Set("name", site.URL)
	q.Set("type", rtype)

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return down(now, 0, 0, failMsg(ClassGenericNetwork, "invalid DoH request: "+err.Error()))
	}
	req.Header.Set("Accept", "application/dns-json")

	start := time.Now()
	resp, err := c.Client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		_, msg := classifyErr(err)
		return down(now, 0, elapsed, msg)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return down(now, resp.StatusCode, elapsed,
			failMsg(ClassUnexpectedStatus, fmt.Sprintf("DoH endpoint returned HTTP %d", resp.StatusCode)))
	}

	var dr dohResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return down(now, 0, elapsed, failMsg(ClassProtocolMismatch, "invalid DoH response: "+err.Error()))
	}

	switch dr.Status {
	case 0:
		// fall through to answer inspection
	case 3:
		return down(now, 3, elapsed, failMsg(ClassDNSFailure, "NXDOMAIN"))
	case 2:
		return down(now, 2, elapsed, failMsg(ClassDNSFailure, "SERVFAIL"))
	default:
		return down(now, dr.Status, elapsed,
			failMsg(ClassDNSFailure, fmt.Sprintf("DoH status %d", dr.Status)))
	}

	records := make([]string, 0, len(dr.Answer))
	wantNum, known := recordTypeNums[rtype]
	for _, a := range dr.Answer {
		if known && a.Type != wantNum {
			continue
		}
		records = append(records, a.Data)
	}
	if len(records) == 0 {
		return down(now, 0, elapsed, failMsg(ClassDNSFailure, "no records"))
	}

	if site.DNSExpectedValue != "" {
		want := normalizeRecord(site.DNSExpectedValue)
		matched := false
		for _, r := range records {
			if normalizeRecord(r) == want {
				matched = true
				break
			}
		}
		if !matched {
			return domain.Result{
				Timestamp:    now,
				Status:       domain.StatusOffline,
				ResponseTime: millis(elapsed),
				Message: failMsg(ClassContentMismatch,
					fmt.Sprintf("expected %q, got %s", site.DNSExpectedValue, summarize(records))),
				Records: records,
			}
		}
	}

	return domain.Result{
		Timestamp:    now,
		Status:       domain.StatusOnline,
		ResponseTime: millis(elapsed),
		Message:      "resolved: " + summarize(records),
		Records:      records,
	}
}

func (c *DNSChecker) endpoint(server string) string {
	s := strings.TrimSpace(server)
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return s
	}
	if u, ok := dohProviders[strings.ToLower(s)]; ok {
		return u
	}
	return c.Cfg.DoHURL
}

// normalizeRecord strips the trailing dot and surrounding quotes and lowers
// the case, so expected-value comparison is exact on both sides.
func normalizeRecord(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimSuffix(v, ".")
	v = strings.Trim(v, `"`)
	return strings.ToLower(v)
}

func summarize(records []string) string {
	if len(records) > 3 {
		return strings.Join(records[:3], ", ") + ", ..."
	}
	return strings.Join(records, ", ")
}
