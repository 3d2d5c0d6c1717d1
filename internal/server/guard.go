package server

import (
	"net/http"

	"github.com/gorilla/sessions"

	"github.com/Ajayi-Ayomide/Scanner-Eyes/internal/session"
)

const cookieName = "scannereyes_auth"

// Guard 负责把受保护路由的访问限制在已认证会话内。
// 除了会话状态外还校验登录时签发的本地 cookie，
// 持有特权令牌的进程不会对同机的任意浏览器敞开。
type Guard struct {
	manager *session.Manager
	cookie  sessions.Store
}

// NewGuard 使用提供的会话密钥创建 Guard。
func NewGuard(manager *session.Manager, sessionKey []byte) *Guard {
	cookieStore := sessions.NewCookieStore(sessionKey)
	cookieStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   60 * 60 * 12, // 12 小时
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
	return &Guard{
		manager: manager,
		cookie:  cookieStore,
	}
}

// Bind 在登录成功后把当前浏览器绑定到本进程会话。
func (g *Guard) Bind(w http.ResponseWriter, r *http.Request) error {
	s, _ := g.cookie.Get(r, cookieName)
	s.Values["bound"] = true
	return s.Save(r, w)
}

// Unbind 清理绑定 cookie。
func (g *Guard) Unbind(w http.ResponseWriter, r *http.Request) error {
	s, _ := g.cookie.Get(r, cookieName)
	s.Options.MaxAge = -1
	return s.Save(r, w)
}

func (g *Guard) bound(r *http.Request) bool {
	s, err := g.cookie.Get(r, cookieName)
	if err != nil {
		return false
	}
	v, ok := s.Values["bound"].(bool)
	return ok && v
}

// Middleware 按会话状态放行请求：初始化阶段返回加载占位而不是登录跳转，
// 未认证一律重定向到登录入口（不保留原始目标地址）。
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := g.manager.Status()
		switch status {
		case session.StatusInitializing, session.StatusAuthenticating:
			w.Header().Set("Retry-After", "1")
			writeStatus(w, string(status), http.StatusServiceUnavailable)
		case session.StatusAuthenticated:
			if !g.bound(r) {
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		default:
			http.Redirect(w, r, "/login", http.StatusFound)
		}
	})
}
