// internal/service/push/handler.go
package push

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"tiffin/internal/pkg/auth"
	"tiffin/internal/pkg/bootstrap"
	"tiffin/internal/pkg/logger"
)

// Handler 把 HTTP 连接升级为 WebSocket 并注册到 Hub。
// 浏览器的 WebSocket API 无法设置请求头，令牌通过 ?token= 传递。
type Handler struct {
	hub      *Hub
	verifier *auth.Verifier
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, verifier *auth.Verifier, allowedOrigins []string) *Handler {
	return &Handler{
		hub:      hub,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     bootstrap.OriginChecker(allowedOrigins),
		},
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.serveWs)
}

func (h *Handler) serveWs(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = auth.BearerToken(r)
	}
	principal, err := h.verifier.Verify(token)
	if err != nil {
		bootstrap.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := newClient(h.hub, conn, subscriptionKeys(principal))
	if !h.hub.join(client) {
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// subscriptionKeys: 顾客按用户 ID 订阅，商家账号额外按商家 ID 订阅。
func subscriptionKeys(p *auth.Principal) []string {
	keys := []string{p.UserID}
	if p.Role == auth.RoleVendor && p.VendorID != "" && p.VendorID != p.UserID {
		keys = append(keys, p.VendorID)
	}
	return keys
}
