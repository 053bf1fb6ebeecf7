package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

// AllowOrigin 给 websocket Upgrader.CheckOrigin 用。
// allowed 为空时不校验；没有 Origin 头的非浏览器客户端放行。
func AllowOrigin(allowed ...string) func(r *http.Request) bool {
	hosts := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		a = strings.TrimRight(strings.TrimSpace(a), "/")
		if a == "" {
			continue
		}
		hosts[strings.ToLower(a)] = struct{}{}
	}
	return func(r *http.Request) bool {
		if len(hosts) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			return false
		}
		_, ok := hosts[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}
