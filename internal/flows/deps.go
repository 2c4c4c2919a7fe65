package flows

import "time"

// Deps groups the flow dependency sets. The Engine builds this once.
type Deps struct {
	Login   LoginDeps
	Refresh RefreshDeps
	Bearer  BearerDeps
	APIKey  APIKeyDeps
}

func nowOr(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}

func warnOr(warn func(string, ...any)) func(string, ...any) {
	if warn == nil {
		return func(string, ...any) {}
	}
	return warn
}
