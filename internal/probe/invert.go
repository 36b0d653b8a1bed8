package probe

import "github.com/hamed0406/sitewatch/internal/domain"

// ApplyInversion post-processes a result for inverted sites (reachable means
// failure). Online and slow both map to offline; offline maps to online;
// unknown is untouched. Applied outside the checkers so every protocol gets
// identical semantics.
func ApplyInversion(site *domain.Site, r domain.Result) domain.Result {
	if !site.Inverted {
		return r
	}
	switch r.Status {
	case domain.StatusOnline, domain.StatusSlow:
		r.Status = domain.StatusOffline
	case domain.StatusOffline:
		r.Status = domain.StatusOnline
	default:
		return r
	}
	r.Message = "inverted: " + r.Message
	return r
}
