package probe

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// TCPChecker treats a completed handshake as the liveness signal. No payload
// is exchanged; the connection is closed immediately.
type TCPChecker struct {
	Cfg Config
}

func (c *TCPChecker) Check(ctx context.Context, site *domain.Site, now time.Time) domain.Result {
	cctx, cancel := context.WithTimeout(ctx, c.Cfg.TCPTimeout)
	defer cancel()

	addr := net.JoinHostPort(site.TCPHost, strconv.Itoa(site.TCPPort))
	var d net.Dialer

	start := time.Now()
	conn, err := d.DialContext(cctx, "tcp", addr)
	elapsed := time.Since(start)
	if err != nil {
		_, msg := classifyErr(err)
		return down(now, 0, elapsed, msg)
	}
	_ = conn.Close()

	status, msg := c.Cfg.classifyLatency("tcp port open", elapsed)
	return up(now, status, 0, elapsed, msg)
}
