package session

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/Ajayi-Ayomide/Scanner-Eyes/internal/api"
	"github.com/Ajayi-Ayomide/Scanner-Eyes/internal/models"
	"github.com/Ajayi-Ayomide/Scanner-Eyes/internal/realtime"
	"github.com/Ajayi-Ayomide/Scanner-Eyes/internal/store"
)

// Status 描述会话生命周期的状态。
type Status string

const (
	StatusInitializing    Status = "initializing"
	StatusUnauthenticated Status = "unauthenticated"
	StatusAuthenticating  Status = "authenticating"
	StatusAuthenticated   Status = "authenticated"
	// StatusError 表示启动时本地存储不可用，与身份校验失败的静默降级不同。
	StatusError Status = "error"
)

// ErrNotAuthenticated 表示操作要求已登录会话。
var ErrNotAuthenticated = errors.New("not authenticated")

// ErrStaleLogin 表示登录成功返回前已被更新的登录或登出取代，结果未被应用。
var ErrStaleLogin = errors.New("login superseded by a newer attempt")

// Manager 是认证状态的唯一权威来源。
// 令牌只经由 Manager 写入本地存储与 HTTP 客户端，其它组件不得直接修改。
type Manager struct {
	api    *api.Client
	store  *store.Store
	broker *realtime.Broker

	mu       sync.Mutex
	status   Status
	user     *models.User
	epoch    uint64 // 每次登出递增，用于作废在途的登录结果
	loginSeq uint64 // 最近一次登录尝试的序号，保证最新尝试生效
}

// NewManager 创建处于 Initializing 状态的会话管理器。
func NewManager(client *api.Client, st *store.Store, broker *realtime.Broker) *Manager {
	return &Manager{
		api:    client,
		store:  st,
		broker: broker,
		status: StatusInitializing,
	}
}

// Status 返回当前会话状态。
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// User 返回当前用户的副本，未登录时为 nil。
func (m *Manager) User() *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// Snapshot 原子地返回状态与用户。
func (m *Manager) Snapshot() (Status, *models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var u *models.User
	if m.user != nil {
		copied := *m.user
		u = &copied
	}
	return m.status, u
}

func (m *Manager) setState(status Status, user *models.User) {
	m.status = status
	m.user = user
	m.publishStatus()
}

// publishStatus 要求调用方已持有锁。
func (m *Manager) publishStatus() {
	payload := map[string]interface{}{"status": m.status}
	if m.user != nil {
		payload["user"] = *m.user
	}
	m.broker.Publish(realtime.Event{Type: realtime.EventSessionStatus, Payload: payload})
}

// Initialize 在进程启动时恢复持久化令牌并向后端确认身份。
// 没有令牌或校验失败都会静默降级为未登录状态；该调用不做重试。
// 恢复流程与登录遵循同一套 epoch 规则：期间发生过登录或登出时，
// 恢复的结果（无论成败）都会被丢弃，不得覆盖更新的会话。
func (m *Manager) Initialize(ctx context.Context) {
	m.mu.Lock()
	epoch := m.epoch
	attempt := m.loginSeq
	m.mu.Unlock()

	token, err := m.store.LoadToken(ctx)
	if err != nil {
		log.Printf("[session] load token failed: %v", err)
		m.mu.Lock()
		if m.epoch == epoch && m.loginSeq == attempt {
			m.setState(StatusError, nil)
		}
		m.mu.Unlock()
		return
	}

	if token == "" {
		m.mu.Lock()
		if m.epoch == epoch && m.loginSeq == attempt {
			m.setState(StatusUnauthenticated, nil)
		}
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	if m.epoch != epoch || m.loginSeq != attempt {
		log.Printf("[session] discarding stale session restore")
		m.mu.Unlock()
		return
	}
	m.api.SetToken(token)
	m.setState(StatusAuthenticating, nil)
	m.mu.Unlock()

	user, err := m.api.Me(ctx)

	m.mu.Lock()
	if m.epoch != epoch || m.loginSeq != attempt {
		log.Printf("[session] discarding stale session restore")
		m.mu.Unlock()
		return
	}
	if err != nil {
		log.Printf("[session] token validation failed: %v", err)
		m.api.ClearToken()
		m.setState(StatusUnauthenticated, nil)
		m.mu.Unlock()
		if delErr := m.store.DeleteToken(ctx); delErr != nil {
			log.Printf("[session] delete token failed: %v", delErr)
		}
		return
	}
	m.setState(StatusAuthenticated, user)
	m.mu.Unlock()
	log.Printf("[session] restored session for %s", user.Email)
}

// Login 提交凭证；成功前不改变任何会话状态，失败时返回可展示的错误。
// 并发登录时只有最新一次尝试的结果会被应用；被取代的尝试返回 ErrStaleLogin。
func (m *Manager) Login(ctx context.Context, email, password string) error {
	m.mu.Lock()
	m.loginSeq++
	attempt := m.loginSeq
	epoch := m.epoch
	m.mu.Unlock()

	result, err := m.api.Login(ctx, email, password)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loginSeq != attempt || m.epoch != epoch {
		// 已有更新的登录或登出发生，丢弃这次结果并让调用方知晓。
		log.Printf("[session] discarding stale login result for %s", email)
		return ErrStaleLogin
	}

	if err := m.store.SaveToken(ctx, result.AccessToken); err != nil {
		log.Printf("[session] persist token failed: %v", err)
	}
	m.api.SetToken(result.AccessToken)
	user := result.User
	m.setState(StatusAuthenticated, &user)
	return nil
}

// Register 创建账户后自动登录；注册成功但登录失败时，登录错误原样上报。
func (m *Manager) Register(ctx context.Context, name, email, password string) error {
	if err := m.api.Register(ctx, name, email, password); err != nil {
		return err
	}
	return m.Login(ctx, email, password)
}

// Logout 清除持久化令牌与内存状态；重复调用是无副作用的成功。
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	m.epoch++
	m.api.ClearToken()
	m.setState(StatusUnauthenticated, nil)
	m.mu.Unlock()

	if err := m.store.DeleteToken(ctx); err != nil {
		log.Printf("[session] delete token failed: %v", err)
	}
}

// UpdateProfile 修改显示名；成功时替换当前用户，失败时会话保持不变。
func (m *Manager) UpdateProfile(ctx context.Context, name string) error {
	m.mu.Lock()
	if m.status != StatusAuthenticated {
		m.mu.Unlock()
		return ErrNotAuthenticated
	}
	epoch := m.epoch
	m.mu.Unlock()

	user, err := m.api.UpdateProfile(ctx, name)
	if err != nil {
		m.HandleAuthError(err)
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch == epoch && m.status == StatusAuthenticated {
		m.setState(StatusAuthenticated, user)
	}
	return nil
}

// ChangePassword 修改密码；失败不会使现有会话失效。
func (m *Manager) ChangePassword(ctx context.Context, current, updated string) error {
	m.mu.Lock()
	if m.status != StatusAuthenticated {
		m.mu.Unlock()
		return ErrNotAuthenticated
	}
	m.mu.Unlock()

	if err := m.api.ChangePassword(ctx, current, updated); err != nil {
		m.HandleAuthError(err)
		return err
	}
	return nil
}

// HandleAuthError 对任意位置遇到的 401 做强制登出升级。
func (m *Manager) HandleAuthError(err error) {
	if err == nil || !errors.Is(err, api.ErrUnauthorized) {
		return
	}
	log.Printf("[session] credential rejected by backend, forcing logout")
	m.Logout(context.Background())
}
