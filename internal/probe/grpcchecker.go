package probe

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/net/http2"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// GRPCChecker issues a bare HTTP/2 request with a gRPC content type and a
// minimal empty frame. It never runs a real RPC; a 200, a grpc-status
// header, or a 415 all count as evidence of a live gRPC endpoint.
type GRPCChecker struct {
	Cfg       Config
	TLSConfig *tls.Config // overridden in tests
}

func (c *GRPCChecker) Check(ctx context.Context, site *domain.Site, now time.Time) domain.Result {
	cctx, cancel := context.WithTimeout(ctx, c.Cfg.GRPCTimeout)
	defer cancel()

	addr := net.JoinHostPort(site.GRPCHost, strconv.Itoa(site.GRPCPort))
	var (
		scheme    string
		transport *http2.Transport
	)
	if site.GRPCTLS {
		scheme = "https"
		tlsCfg := c.TLSConfig
		if tlsCfg == nil {
			tlsCfg = &tls.Config{ServerName: site.GRPCHost, NextProtos: []string{"h2"}}
		}
		transport = &http2.Transport{TLSClientConfig: tlsCfg}
	} else {
		scheme = "http"
		transport = &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		}
	}

	// Empty length-prefixed gRPC frame: compression flag + 4-byte length.
	frame := bytes.NewReader([]byte{0, 0, 0, 0, 0})
	url := fmt.Sprintf("%s://%s/grpc.health.v1.Health/Check", scheme, addr)
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, url, frame)
	if err != nil {
		return down(now, 0, 0, failMsg(ClassGenericNetwork, "invalid request: "+err.Error()))
	}
	req.Header.Set("Content-Type", "application/grpc")
	req.Header.Set("TE", "trailers")

	start := time.Now()
	resp, err := transport.RoundTrip(req)
	elapsed := time.Since(start)
	if err != nil {
		_, msg := classifyErr(err)
		return down(now, 0, elapsed, msg)
	}
	defer resp.Body.Close()

	grpcStatus := resp.Header.Get("grpc-status")
	if resp.StatusCode == http.StatusOK || grpcStatus != "" ||
		resp.StatusCode == http.StatusUnsupportedMediaType {
		status, msg := c.Cfg.classifyLatency(
			fmt.Sprintf("grpc endpoint up (HTTP %d)", resp.StatusCode), elapsed)
		return up(now, status, resp.StatusCode, elapsed, msg)
	}

	return down(now, resp.StatusCode, elapsed,
		failMsg(ClassUnexpectedStatus, fmt.Sprintf("HTTP %d without grpc-status", resp.StatusCode)))
}
