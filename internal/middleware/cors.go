package middleware

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// CORSConfig lists the browser origins allowed to call the API. An entry is
// "*", an exact origin such as "https://box.example.com", or a subdomain
// wildcard such as "*.tickets.example.com".
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int // seconds a preflight may be cached
}

// DefaultCORSConfig allows any origin to drive the cart and payment API
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", BuyerHeader, "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id", "Retry-After"},
		MaxAge:         86400,
	}
}

// corsPolicy is a CORSConfig compiled for per-request matching
type corsPolicy struct {
	anyOrigin  bool
	exact      map[string]bool
	subdomains []string // ".tickets.example.com"

	methods     string
	headers     string
	exposed     string
	maxAge      string
	credentials bool
}

func compileCORS(config CORSConfig) *corsPolicy {
	p := &corsPolicy{
		exact:       make(map[string]bool),
		methods:     strings.Join(config.AllowedMethods, ", "),
		headers:     strings.Join(config.AllowedHeaders, ", "),
		exposed:     strings.Join(config.ExposedHeaders, ", "),
		credentials: config.AllowCredentials,
	}
	if config.MaxAge > 0 {
		p.maxAge = strconv.Itoa(config.MaxAge)
	}

	for _, origin := range config.AllowedOrigins {
		origin = strings.ToLower(strings.TrimSpace(origin))
		switch {
		case origin == "*":
			p.anyOrigin = true
		case strings.HasPrefix(origin, "*."):
			// Keep the leading dot so "*.example.com" never matches
			// "evilexample.com".
			p.subdomains = append(p.subdomains, origin[1:])
		case origin != "":
			p.exact[origin] = true
		}
	}
	return p
}

// allows reports whether the Origin header value may read responses
func (p *corsPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if p.anyOrigin || p.exact[strings.ToLower(origin)] {
		return true
	}
	if len(p.subdomains) == 0 {
		return false
	}

	u, err := url.Parse(origin)
	if err != nil || u.Host == "" || (u.Path != "" && u.Path != "/") || u.User != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, suffix := range p.subdomains {
		if len(host) > len(suffix) && strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// CORSMiddleware answers preflights and decorates responses to allowed
// origins. Responses to other origins carry no CORS headers.
func CORSMiddleware(config CORSConfig) func(http.Handler) http.Handler {
	policy := compileCORS(config)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			h := w.Header()
			h.Add("Vary", "Origin")

			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if !policy.allows(origin) {
				if preflight {
					w.WriteHeader(http.StatusNoContent)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Origin", origin)
			if policy.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if policy.exposed != "" {
				h.Set("Access-Control-Expose-Headers", policy.exposed)
			}

			if !preflight {
				next.ServeHTTP(w, r)
				return
			}

			if policy.methods != "" {
				h.Set("Access-Control-Allow-Methods", policy.methods)
			}
			if policy.headers != "" {
				h.Set("Access-Control-Allow-Headers", policy.headers)
			}
			if policy.maxAge != "" {
				h.Set("Access-Control-Max-Age", policy.maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
