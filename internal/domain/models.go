package domain

import "time"

type SiteID string

// MonitorType selects which protocol checker probes a site.
type MonitorType string

const (
	MonitorHTTP     MonitorType = "http"
	MonitorDNS      MonitorType = "dns"
	MonitorTCP      MonitorType = "tcp"
	MonitorSMTP     MonitorType = "smtp"
	MonitorMySQL    MonitorType = "mysql"
	MonitorPostgres MonitorType = "postgres"
	MonitorMongoDB  MonitorType = "mongodb"
	MonitorRedis    MonitorType = "redis"
	MonitorGRPC     MonitorType = "grpc"
	MonitorPush     MonitorType = "push"
)

// Active reports whether the site is probed by us (vs reporting in on its own).
func (t MonitorType) Active() bool { return t != MonitorPush }

type Status string

const (
	StatusUnknown Status = "unknown"
	StatusOnline  Status = "online"
	StatusSlow    Status = "slow"
	StatusOffline Status = "offline"
)

// Up reports whether the status belongs to the online family.
func (s Status) Up() bool { return s == StatusOnline || s == StatusSlow }

type SMTPSecurity string

const (
	SMTPSecurityNone     SMTPSecurity = "none"
	SMTPSecurityStartTLS SMTPSecurity = "starttls"
	SMTPSecuritySMTPS    SMTPSecurity = "smtps"
)

// CertInfo is the cached snapshot of an HTTPS site's certificate.
type CertInfo struct {
	Valid     bool      `json:"valid"`
	DaysLeft  int       `json:"days_left"`
	Issuer    string    `json:"issuer"`
	ValidFrom time.Time `json:"valid_from"`
	ValidTo   time.Time `json:"valid_to"`
	Algorithm string    `json:"algorithm"`
}

// Site is a monitored target. The CRUD layer owns creation/editing; the core
// only reads sites and writes back the status block and cert snapshot.
type Site struct {
	ID   SiteID      `json:"id"`
	Name string      `json:"name"`
	Type MonitorType `json:"type"`

	// Status block, written on every check.
	Status       Status    `json:"status"`
	ResponseTime int64     `json:"response_time_ms"`
	LastCheck    time.Time `json:"last_check"`
	Message      string    `json:"message,omitempty"`

	Inverted      bool  `json:"inverted,omitempty"`
	NotifyEnabled *bool `json:"notify_enabled,omitempty"` // nil means enabled

	// http
	URL                      string            `json:"url,omitempty"`
	Method                   string            `json:"method,omitempty"`
	Headers                  map[string]string `json:"headers,omitempty"`
	Body                     string            `json:"body,omitempty"`
	ExpectedCodes            []int             `json:"expected_codes,omitempty"`
	ResponseKeyword          string            `json:"response_keyword,omitempty"`
	ResponseForbiddenKeyword string            `json:"response_forbidden_keyword,omitempty"`

	// dns
	DNSRecordType    string `json:"dns_record_type,omitempty"`
	DNSExpectedValue string `json:"dns_expected_value,omitempty"`
	DNSServer        string `json:"dns_server,omitempty"` // DoH provider name or URL

	// tcp
	TCPHost string `json:"tcp_host,omitempty"`
	TCPPort int    `json:"tcp_port,omitempty"`

	// smtp
	SMTPHost     string       `json:"smtp_host,omitempty"`
	SMTPPort     int          `json:"smtp_port,omitempty"`
	SMTPSecurity SMTPSecurity `json:"smtp_security,omitempty"`

	// mysql / postgres / mongodb / redis
	DBHost string `json:"db_host,omitempty"`
	DBPort int    `json:"db_port,omitempty"`

	// grpc
	GRPCHost string `json:"grpc_host,omitempty"`
	GRPCPort int    `json:"grpc_port,omitempty"`
	GRPCTLS  bool   `json:"grpc_tls,omitempty"`

	// push
	PushToken           string         `json:"push_token,omitempty"`
	PushIntervalSeconds int            `json:"push_interval_seconds,omitempty"`
	LastHeartbeat       time.Time      `json:"last_heartbeat,omitempty"`
	PushData            map[string]any `json:"push_data,omitempty"`

	// tls certificate watching (https sites)
	CheckCert        bool      `json:"check_cert,omitempty"`
	SSLCert          *CertInfo `json:"ssl_cert,omitempty"`
	SSLCertLastCheck time.Time `json:"ssl_cert_last_check,omitempty"`
}

// Notifiable reports whether alerts for this site may be sent.
func (s *Site) Notifiable() bool {
	return s.NotifyEnabled == nil || *s.NotifyEnabled
}
