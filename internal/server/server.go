package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"

	"github.com/Ajayi-Ayomide/Scanner-Eyes/internal/api"
	"github.com/Ajayi-Ayomide/Scanner-Eyes/internal/config"
	"github.com/Ajayi-Ayomide/Scanner-Eyes/internal/models"
	"github.com/Ajayi-Ayomide/Scanner-Eyes/internal/realtime"
	"github.com/Ajayi-Ayomide/Scanner-Eyes/internal/scan"
	"github.com/Ajayi-Ayomide/Scanner-Eyes/internal/session"
	"github.com/Ajayi-Ayomide/Scanner-Eyes/internal/store"
)

// Server 把会话管理器与扫描编排器暴露为浏览器消费的 JSON/SSE 接口。
// 页面渲染本身不在这里，界面只调用这些接口并展示返回内容。
type Server struct {
	cfg      *config.Config
	store    *store.Store
	client   *api.Client
	sessions *session.Manager
	scans    *scan.Orchestrator
	guard    *Guard
	broker   *realtime.Broker
}

// New 创建并组装 Server 的全部组件。
func New(cfg *config.Config, st *store.Store) *Server {
	broker := realtime.NewBroker()
	client := api.NewClient(cfg.APIBaseURL, cfg.RequestTimeout)
	manager := session.NewManager(client, st, broker)

	return &Server{
		cfg:      cfg,
		store:    st,
		client:   client,
		sessions: manager,
		scans:    scan.NewOrchestrator(client, manager, st, broker),
		guard:    NewGuard(manager, cfg.SessionKey),
		broker:   broker,
	}
}

// Sessions 返回会话管理器，供启动流程恢复持久化会话。
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// Handler 返回根 HTTP 处理器。
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/healthz"))

	csrfMiddleware := csrf.Protect(
		s.cfg.CSRFKey,
		csrf.Secure(false),
		csrf.Path("/"),
		csrf.FieldName("csrf_token"),
	)

	r.Group(func(pub chi.Router) {
		pub.Get("/session", s.handleSession)
		pub.Post("/login", s.handleLogin)
		pub.Post("/register", s.handleRegister)
	})

	authRoutes := r.With(s.guard.Middleware)
	authRoutes.Post("/logout", s.handleLogout)

	authRoutes.Route("/api", func(apiRoutes chi.Router) {
		apiRoutes.Get("/events", s.streamEvents)

		apiRoutes.Get("/me", s.apiMe)
		apiRoutes.Put("/profile", s.apiUpdateProfile)
		apiRoutes.Post("/password", s.apiChangePassword)

		apiRoutes.Post("/scan", s.apiStartScan)
		apiRoutes.Get("/scan", s.apiCurrentScan)
		apiRoutes.Get("/runs", s.apiListRuns)
		apiRoutes.Get("/history", s.apiRemoteHistory)
		apiRoutes.Get("/stats", s.apiRemoteStats)
	})

	return csrfMiddleware(r)
}

// handleSession 对外公布会话状态，界面据此决定显示加载页还是登录页。
// 同时通过响应头下发 CSRF 令牌。
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	status, user := s.sessions.Snapshot()
	w.Header().Set("X-CSRF-Token", csrf.Token(r))
	writeJSON(w, map[string]interface{}{
		"status":        status,
		"user":          user,
		"authenticated": status == session.StatusAuthenticated,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, "invalid request body", http.StatusBadRequest)
		return
	}
	body.Email = strings.TrimSpace(body.Email)
	if body.Email == "" || body.Password == "" {
		writeMessage(w, "email and password required", http.StatusBadRequest)
		return
	}
	if err := s.sessions.Login(r.Context(), body.Email, body.Password); err != nil {
		writeErr(w, err, statusFor(err))
		return
	}
	if err := s.guard.Bind(w, r); err != nil {
		writeErr(w, err, http.StatusInternalServerError)
		return
	}
	status, user := s.sessions.Snapshot()
	writeJSON(w, map[string]interface{}{"status": status, "user": user})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, "invalid request body", http.StatusBadRequest)
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	body.Email = strings.TrimSpace(body.Email)
	if body.Name == "" || body.Email == "" || body.Password == "" {
		writeMessage(w, "name, email and password required", http.StatusBadRequest)
		return
	}
	if err := s.sessions.Register(r.Context(), body.Name, body.Email, body.Password); err != nil {
		writeErr(w, err, statusFor(err))
		return
	}
	if err := s.guard.Bind(w, r); err != nil {
		writeErr(w, err, http.StatusInternalServerError)
		return
	}
	status, user := s.sessions.Snapshot()
	writeJSON(w, map[string]interface{}{"status": status, "user": user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Logout(r.Context())
	_ = s.guard.Unbind(w, r)
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) apiMe(w http.ResponseWriter, r *http.Request) {
	user := s.sessions.User()
	if user == nil {
		writeMessage(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	writeJSON(w, user)
}

func (s *Server) apiUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, "invalid request body", http.StatusBadRequest)
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" {
		writeMessage(w, "name required", http.StatusBadRequest)
		return
	}
	if err := s.sessions.UpdateProfile(r.Context(), body.Name); err != nil {
		writeErr(w, err, statusFor(err))
		return
	}
	writeJSON(w, s.sessions.User())
}

func (s *Server) apiChangePassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.CurrentPassword == "" || body.NewPassword == "" {
		writeMessage(w, "current and new password required", http.StatusBadRequest)
		return
	}
	if err := s.sessions.ChangePassword(r.Context(), body.CurrentPassword, body.NewPassword); err != nil {
		writeErr(w, err, statusFor(err))
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) apiStartScan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode  string `json:"mode"`
		IP    string `json:"ip"`
		Ports string `json:"ports"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, "invalid request body", http.StatusBadRequest)
		return
	}
	run, err := s.scans.Start(scan.Mode(body.Mode), body.IP, body.Ports)
	if err != nil {
		writeErr(w, err, statusFor(err))
		return
	}
	writeJSON(w, run)
}

func (s *Server) apiCurrentScan(w http.ResponseWriter, r *http.Request) {
	run, ok := s.scans.Current()
	if !ok {
		writeJSON(w, map[string]string{"status": string(scan.StatusIdle)})
		return
	}
	writeJSON(w, run)
}

func (s *Server) apiListRuns(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListRuns(r.Context(), 50)
	if err != nil {
		writeErr(w, err, http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []models.ScanRecord{}
	}
	writeJSON(w, records)
}

func (s *Server) apiRemoteHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.client.History(r.Context())
	if err != nil {
		s.sessions.HandleAuthError(err)
		writeErr(w, err, statusFor(err))
		return
	}
	if entries == nil {
		entries = []api.HistoryEntry{}
	}
	writeJSON(w, entries)
}

func (s *Server) apiRemoteStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.client.Stats(r.Context())
	if err != nil {
		s.sessions.HandleAuthError(err)
		writeErr(w, err, statusFor(err))
		return
	}
	writeJSON(w, stats)
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cleanup := s.broker.Subscribe()
	defer cleanup()

	notify := r.Context().Done()
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	for {
		select {
		case msg := <-ch:
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(msg)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-notify:
			return
		}
	}
}

// statusFor 把核心组件的错误映射为 HTTP 状态码。
func statusFor(err error) int {
	var apiErr *api.Error
	switch {
	case errors.Is(err, session.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrStaleLogin):
		// 结果未被应用，调用方应重新读取 /session。
		return http.StatusConflict
	case errors.Is(err, scan.ErrScanInFlight):
		return http.StatusConflict
	case errors.Is(err, scan.ErrMissingTarget):
		return http.StatusBadRequest
	case errors.As(err, &apiErr):
		return apiErr.Status
	default:
		// 网络不可达、超时等都算上游故障。
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func writeErr(w http.ResponseWriter, err error, status int) {
	writeMessage(w, err.Error(), status)
}

func writeMessage(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeStatus(w http.ResponseWriter, status string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
