package bootstrap

import (
	"net/http"
	"strings"
)

// CORS 允许浏览器/移动端 WebView 直接调用函数。
// 预检请求直接返回 200 空响应体。
func CORS(allowOrigins []string) func(http.Handler) http.Handler {
	allowAll := len(allowOrigins) == 0 || (len(allowOrigins) == 1 && allowOrigins[0] == "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeCORSHeaders(w, r.Header.Get("Origin"), allowOrigins, allowAll)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeCORSHeaders(w http.ResponseWriter, origin string, allowOrigins []string, allowAll bool) {
	switch {
	case allowAll:
		w.Header().Set("Access-Control-Allow-Origin", "*")
	case origin != "" && originAllowed(origin, allowOrigins):
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
	default:
		return
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
}

func originAllowed(origin string, allow []string) bool {
	for _, a := range allow {
		if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(origin)) {
			return true
		}
	}
	return false
}

// OriginChecker 供 WebSocket 升级使用，与 CORS 共用同一份白名单。没有 Origin 头的非浏览器客户端放行。
func OriginChecker(allowOrigins []string) func(r *http.Request) bool {
	allowAll := len(allowOrigins) == 0 || (len(allowOrigins) == 1 && allowOrigins[0] == "*")
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return allowAll || origin == "" || originAllowed(origin, allowOrigins)
	}
}
