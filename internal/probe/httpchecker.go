package probe

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/hamed0406/sitewatch/internal/domain"
)

const maxBodyBytes = 512 * 1024

var allowedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

type HTTPChecker struct {
	Client   *http.Client
	Resolver hostResolver // side-channel DNS disambiguation; nil = system resolver
	Cfg      Config
}

func NewHTTPChecker(cfg Config) *HTTPChecker {
	return &HTTPChecker{
		Client: &http.Client{},
		Cfg:    cfg,
	}
}

func (c *HTTPChecker) Check(ctx context.Context, site *domain.Site, now time.Time) domain.Result {
	cctx, cancel := context.WithTimeout(ctx, c.Cfg.HTTPTimeout)
	defer cancel()

	method := strings.ToUpper(strings.TrimSpace(site.Method))
	if !allowedMethods[method] {
		method = http.MethodGet
	}

	var body io.Reader
	if site.Body != "" && method != http.MethodGet && method != http.MethodHead {
		body = strings.NewReader(site.Body)
	}

	req, err := http.NewRequestWithContext(cctx, method, site.URL, body)
	if err != nil {
		return down(now, 0, 0, failMsg(ClassGenericNetwork, "invalid request: "+err.Error()))
	}
	for k, v := range site.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.Client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		_, msg := disambiguate(cctx, c.Resolver, hostOf(site.URL), err)
		return down(now, 0, elapsed, msg)
	}
	defer resp.Body.Close()

	alive := codeExpected(resp.StatusCode, site.ExpectedCodes)
	failure := ""

	if site.ResponseKeyword != "" || site.ResponseForbiddenKeyword != "" {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		text := decodeBody(raw, resp.Header.Get("Content-Type"))
		if site.ResponseKeyword != "" && !strings.Contains(text, site.ResponseKeyword) {
			alive = false
			failure = failMsg(ClassContentMismatch, fmt.Sprintf("keyword %q not found", site.ResponseKeyword))
		}
		if site.ResponseForbiddenKeyword != "" && strings.Contains(text, site.ResponseForbiddenKeyword) {
			alive = false
			failure = failMsg(ClassContentMismatch, fmt.Sprintf("forbidden keyword %q present", site.ResponseForbiddenKeyword))
		}
	}

	if !alive {
		if failure == "" {
			failure = failMsg(ClassUnexpectedStatus, fmt.Sprintf("HTTP %d", resp.StatusCode))
		}
		return down(now, resp.StatusCode, elapsed, failure)
	}

	status, msg := c.Cfg.classifyLatency(fmt.Sprintf("HTTP %d", resp.StatusCode), elapsed)
	return up(now, status, resp.StatusCode, elapsed, msg)
}

func codeExpected(code int, expected []int) bool {
	if len(expected) == 0 {
		return code >= 200 && code < 300
	}
	for _, c := range expected {
		if c == code {
			return true
		}
	}
	return false
}

// decodeBody decodes a response body according to the charset declared in
// Content-Type. Bodies with no (or an unknown) declared charset default to
// UTF-8 with a GB18030 fallback when the bytes are not valid UTF-8.
func decodeBody(raw []byte, contentType string) string {
	charset := ""
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		charset = strings.ToLower(params["charset"])
	}
	switch charset {
	case "gbk":
		if out, err := simplifiedchinese.GBK.NewDecoder().Bytes(raw); err == nil {
			return string(out)
		}
	case "gb18030", "gb2312":
		if out, err := simplifiedchinese.GB18030.NewDecoder().Bytes(raw); err == nil {
			return string(out)
		}
	}
	if utf8.Valid(raw) {
		return string(raw)
	}
	if out, err := simplifiedchinese.GB18030.NewDecoder().Bytes(raw); err == nil {
		return string(out)
	}
	return string(raw)
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}
