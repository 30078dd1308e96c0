// Package middleware provides HTTP middlewares for the local daemon:
// loopback enforcement, cache suppression, and request logging.
package middleware

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// LoopbackOnly rejects requests whose peer is not a loopback address. The
// daemon serves derived passwords and must never answer remote clients.
func LoopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			http.Error(w, "loopback clients only", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LocalHostOnly rejects requests whose Host header, or Origin header when
// one is sent, names anything other than a loopback host or one of extra.
func LocalHostOnly(extra ...string) func(http.Handler) http.Handler {
	allowed := map[string]bool{"localhost": true, "127.0.0.1": true, "::1": true}
	for _, h := range extra {
		if h = normalizeHost(h); h != "" {
			allowed[h] = true
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allowed[normalizeHost(hostOnly(r.Host))] {
				http.Error(w, "unexpected host", http.StatusForbidden)
				return
			}
			if origin := r.Header.Get("Origin"); origin != "" {
				u, err := url.Parse(origin)
				if err != nil || !allowed[normalizeHost(u.Hostname())] {
					http.Error(w, "cross-origin requests are not allowed", http.StatusForbidden)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hostOnly(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return hostport
}

func normalizeHost(h string) string {
	return strings.ToLower(strings.Trim(h, "[]"))
}

// NoStore marks every response as uncacheable.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
