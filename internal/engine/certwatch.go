package engine

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

// Expiry thresholds, tightest last. Each fires at most once per decline; the
// marker ratchets downward and only a renewal (days back above all
// thresholds) re-arms it.
var certThresholds = []struct {
	Days  int
	Label string
}{
	{30, "30_days"},
	{7, "7_days"},
	{1, "1_day"},
}

func thresholdDays(label string) int {
	for _, t := range certThresholds {
		if t.Label == label {
			return t.Days
		}
	}
	return 0
}

// CertFetcher retrieves current certificate metadata for a host.
type CertFetcher interface {
	Fetch(ctx context.Context, host string, port int) (domain.CertInfo, error)
}

// TLSFetcher reads the leaf certificate off a real handshake. Verification
// is skipped on purpose: an expired certificate must still be readable so it
// can be alerted on.
type TLSFetcher struct {
	Timeout time.Duration
}

func (f *TLSFetcher) Fetch(ctx context.Context, host string, port int) (domain.CertInfo, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	d := &tls.Dialer{Config: &tls.Config{ServerName: host, InsecureSkipVerify: true}}
	conn, err := d.DialContext(cctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return domain.CertInfo{}, err
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return domain.CertInfo{}, fmt.Errorf("no peer certificate from %s", host)
	}
	leaf := state.PeerCertificates[0]

	now := time.Now()
	return domain.CertInfo{
		Valid:     !now.Before(leaf.NotBefore) && !now.After(leaf.NotAfter),
		DaysLeft:  int(time.Until(leaf.NotAfter).Hours() / 24),
		Issuer:    leaf.Issuer.CommonName,
		ValidFrom: leaf.NotBefore,
		ValidTo:   leaf.NotAfter,
		Algorithm: leaf.SignatureAlgorithm.String(),
	}, nil
}

// CertMonitor re-checks HTTPS certificate metadata and applies the
// threshold-based, deduplicated alerting policy.
type CertMonitor struct {
	Sites      repo.SiteStore
	Incidents  repo.IncidentStore
	Alerts     repo.AlertStateStore
	Fetcher    CertFetcher
	Logger     *zap.Logger
	MinRecheck time.Duration // gate between fetches; default 6h
}

// Run performs the opportunistic per-tick re-check for one site. A fetch
// failure is logged, never alerted: the availability probe covers outages.
func (c *CertMonitor) Run(ctx context.Context, site *domain.Site, now time.Time) (*domain.Incident, error) {
	if !site.CheckCert || !strings.HasPrefix(site.URL, "https://") {
		return nil, nil
	}
	minRecheck := c.MinRecheck
	if minRecheck <= 0 {
		minRecheck = 6 * time.Hour
	}
	if !site.SSLCertLastCheck.IsZero() && now.Sub(site.SSLCertLastCheck) < minRecheck {
		return nil, nil
	}

	host, port := certTarget(site.URL)
	if host == "" {
		return nil, nil
	}

	info, err := c.Fetcher.Fetch(ctx, host, port)
	if err != nil {
		c.Logger.Warn("cert_fetch_failed",
			zap.String("site_id", string(site.ID)),
			zap.String("host", host),
			zap.Error(err),
		)
		return nil, nil
	}

	if err := c.Sites.UpdateCertInfo(ctx, site.ID, info, now); err != nil {
		return nil, err
	}
	return c.evaluate(ctx, site, info, now)
}

func (c *CertMonitor) evaluate(ctx context.Context, site *domain.Site, info domain.CertInfo, now time.Time) (*domain.Incident, error) {
	state, err := c.Alerts.AlertState(ctx, site.ID)
	if err != nil {
		return nil, err
	}
	last := ""
	if state != nil {
		last = state.LastAlertType
	}

	for _, t := range certThresholds {
		if info.DaysLeft > t.Days {
			continue
		}
		if last != "" && t.Days >= thresholdDays(last) {
			// this threshold (or a tighter one) already alerted this decline
			continue
		}
		end := now
		inc := &domain.Incident{
			SiteID:    site.ID,
			SiteName:  site.Name,
			Type:      domain.IncidentCertWarning,
			StartTime: now,
			EndTime:   &end,
			Status:    domain.IncidentResolved,
			Reason:    certReason(info),
		}
		if err := c.Incidents.CreateIncident(ctx, inc); err != nil {
			return nil, err
		}
		if err := c.Alerts.SetAlertState(ctx, site.ID, t.Label, now); err != nil {
			return nil, err
		}
		c.Logger.Info("cert_warning",
			zap.String("site_id", string(site.ID)),
			zap.String("threshold", t.Label),
			zap.Int("days_left", info.DaysLeft),
		)
		return inc, nil
	}

	// Renewed: days back above every threshold re-arms the alert chain.
	if last != "" && info.DaysLeft > certThresholds[0].Days {
		if err := c.Alerts.SetAlertState(ctx, site.ID, "", now); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func certReason(info domain.CertInfo) string {
	reason := fmt.Sprintf("certificate expires in %d day(s)", info.DaysLeft)
	if info.DaysLeft < 0 {
		reason = fmt.Sprintf("certificate expired %d day(s) ago", -info.DaysLeft)
	}
	if info.Issuer != "" {
		reason += fmt.Sprintf(" (issuer: %s)", info.Issuer)
	}
	return reason
}

func certTarget(raw string) (string, int) {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", 0
	}
	port := 443
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}
	return u.Hostname(), port
}
