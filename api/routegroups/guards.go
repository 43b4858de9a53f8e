package routegroups

import "net/http"

type Middleware func(http.HandlerFunc) http.HandlerFunc

type Guards struct {
	WithSession       Middleware
	RequirePermission func(perm string) func(http.HandlerFunc) http.HandlerFunc
	RateLimit         Middleware
}

func (g Guards) SessionPerm(perm string, h http.HandlerFunc) http.HandlerFunc {
	return g.WithSession(g.RequirePermission(perm)(h))
}

func (g Guards) Throttled(h http.HandlerFunc) http.HandlerFunc {
	if g.RateLimit == nil {
		return h
	}
	return g.RateLimit(h)
}
