package probe

import "github.com/hamed0406/sitewatch/internal/domain"

// Registry maps a site's monitor type to its checker, replacing stringly
// dispatch at call sites.
type Registry struct {
	checkers map[domain.MonitorType]Checker
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{checkers: map[domain.MonitorType]Checker{
		domain.MonitorHTTP:     NewHTTPChecker(cfg),
		domain.MonitorDNS:      NewDNSChecker(cfg),
		domain.MonitorTCP:      &TCPChecker{Cfg: cfg},
		domain.MonitorSMTP:     &SMTPChecker{Cfg: cfg},
		domain.MonitorMySQL:    &DBChecker{Kind: domain.MonitorMySQL, Cfg: cfg},
		domain.MonitorPostgres: &DBChecker{Kind: domain.MonitorPostgres, Cfg: cfg},
		domain.MonitorMongoDB:  &DBChecker{Kind: domain.MonitorMongoDB, Cfg: cfg},
		domain.MonitorRedis:    &DBChecker{Kind: domain.MonitorRedis, Cfg: cfg},
		domain.MonitorGRPC:     &GRPCChecker{Cfg: cfg},
		domain.MonitorPush:     PushChecker{},
	}}
}

func (r *Registry) ForType(t domain.MonitorType) (Checker, bool) {
	c, ok := r.checkers[t]
	return c, ok
}
