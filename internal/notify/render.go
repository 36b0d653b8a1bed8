package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// Render turns an incident into channel-agnostic copy. Each incident type
// has its own wording and data table.
func Render(inc *domain.Incident, site *domain.Site) Message {
	name := inc.SiteName
	if name == "" {
		name = string(inc.SiteID)
	}

	var (
		title string
		rows  []string
	)
	switch inc.Type {
	case domain.IncidentDown:
		title = fmt.Sprintf("🔴 %s is down", name)
		rows = append(rows,
			row("Reason", inc.Reason),
			row("Response time", fmt.Sprintf("%d ms", site.ResponseTime)),
			row("Since", inc.StartTime.Format(time.RFC3339)),
		)
	case domain.IncidentRecovered:
		title = fmt.Sprintf("🟢 %s recovered", name)
		rows = append(rows,
			row("Downtime", formatDuration(inc.Duration)),
			row("Response time", fmt.Sprintf("%d ms", site.ResponseTime)),
			row("Recovered at", inc.StartTime.Format(time.RFC3339)),
		)
	case domain.IncidentCertWarning:
		title = fmt.Sprintf("⚠️ Certificate expiring for %s", name)
		rows = append(rows, row("Reason", inc.Reason))
		if site.SSLCert != nil {
			rows = append(rows,
				row("Days left", fmt.Sprintf("%d", site.SSLCert.DaysLeft)),
				row("Issuer", site.SSLCert.Issuer),
				row("Valid until", site.SSLCert.ValidTo.Format("2006-01-02")),
			)
		}
	default:
		title = fmt.Sprintf("%s: %s", name, inc.Type)
		rows = append(rows, row("Reason", inc.Reason))
	}

	if site.URL != "" {
		rows = append(rows, row("Target", site.URL))
	}
	return Message{Title: title, Text: strings.Join(rows, "\n")}
}

func row(k, v string) string { return k + ": " + v }

func formatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	switch {
	case d >= time.Hour:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= time.Minute:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
}
