package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Ajayi-Ayomide/Scanner-Eyes/internal/models"
)

// ErrUnauthorized 表示后端拒绝了当前凭证（401）。
var ErrUnauthorized = errors.New("unauthorized")

// Error 携带后端返回的非 2xx 状态与可展示的错误说明。
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("server returned status %d", e.Status)
}

func (e *Error) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Client 是扫描后端的 HTTP 客户端，负责为出站请求附加凭证。
// 凭证只由会话管理器写入，其余组件仅通过请求头间接读取。
type Client struct {
	baseURL string
	httpc   *http.Client

	mu    sync.RWMutex
	token string
}

// NewClient 按给定的基址与超时时间创建客户端。
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// SetToken 更新随后所有请求携带的 bearer 凭证。
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// ClearToken 清除凭证，之后的请求不再携带任何认证头。
func (c *Client) ClearToken() {
	c.SetToken("")
}

// Token 返回当前持有的凭证，无凭证时为空串。
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody struct {
			Detail string `json:"detail"`
			Err    string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		detail := errBody.Detail
		if detail == "" {
			detail = errBody.Err
		}
		return &Error{Status: resp.StatusCode, Detail: detail}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// RawPort 是后端返回的未归一化端口条目。
type RawPort struct {
	Port    int    `json:"port"`
	Service string `json:"service"`
}

// RawVulnerability 是后端返回的未归一化漏洞条目。
type RawVulnerability struct {
	Type          string `json:"type"`
	Severity      string `json:"severity"`
	Description   string `json:"description"`
	FixSuggestion string `json:"fix_suggestion"`
	Port          int    `json:"port"`
}

// RawDevice 是后端返回的未归一化设备对象，字段都可能缺失。
type RawDevice struct {
	IP              string             `json:"ip"`
	DeviceName      string             `json:"device_name"`
	DeviceType      string             `json:"device_type"`
	RiskLevel       string             `json:"risk_level"`
	Status          string             `json:"status"`
	OpenPorts       []RawPort          `json:"open_ports"`
	Vulnerabilities []RawVulnerability `json:"vulnerabilities"`
	LastSeen        string             `json:"last_seen"`
}

// LoginResult 对应登录接口的成功响应。
type LoginResult struct {
	AccessToken string      `json:"access_token"`
	User        models.User `json:"user"`
}

// HistoryEntry 对应后端扫描历史的一条记录。
type HistoryEntry struct {
	ID        int64           `json:"id"`
	IP        string          `json:"ip"`
	ScanType  string          `json:"scan_type"`
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Result    json.RawMessage `json:"result"`
}

// ScanStats 对应仪表盘统计接口的响应。
type ScanStats struct {
	TotalScans        int        `json:"total_scans"`
	TodayScans        int        `json:"today_scans"`
	VulnerableDevices int        `json:"vulnerable_devices"`
	LastScan          *time.Time `json:"last_scan"`
	TotalDevicesFound int        `json:"total_devices_found"`
	HighRiskDevices   int        `json:"high_risk_devices"`
	MediumRiskDevices int        `json:"medium_risk_devices"`
	LowRiskDevices    int        `json:"low_risk_devices"`
}

// Me 使用当前凭证解析用户身份。
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Login 提交登录凭证，成功时返回访问令牌与用户信息。
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body := map[string]string{"email": email, "password": password}
	var result LoginResult
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Register 创建新账户；登录需要由调用方随后单独发起。
func (c *Client) Register(ctx context.Context, name, email, password string) error {
	body := map[string]string{"name": name, "email": email, "password": password}
	return c.do(ctx, http.MethodPost, "/auth/register", body, nil)
}

// UpdateProfile 修改当前用户的显示名并返回更新后的用户。
func (c *Client) UpdateProfile(ctx context.Context, name string) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodPut, "/auth/me", map[string]string{"name": name}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ChangePassword 修改当前用户密码。
func (c *Client) ChangePassword(ctx context.Context, current, updated string) error {
	body := map[string]string{
		"current_password": current,
		"new_password":     updated,
	}
	return c.do(ctx, http.MethodPost, "/auth/change-password", body, nil)
}

// AutoScan 触发一次全网自动发现扫描。
func (c *Client) AutoScan(ctx context.Context) ([]RawDevice, error) {
	var resp struct {
		Cameras []RawDevice `json:"cameras"`
	}
	if err := c.do(ctx, http.MethodPost, "/scan/auto", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Cameras, nil
}

// ManualScan 对指定地址与端口集合发起定向扫描。
func (c *Client) ManualScan(ctx context.Context, ip string, ports []int) ([]RawDevice, error) {
	body := map[string]interface{}{
		"ip":        ip,
		"ports":     ports,
		"scan_type": "manual_scan",
	}
	var resp struct {
		Devices []RawDevice `json:"devices"`
	}
	if err := c.do(ctx, http.MethodPost, "/scan/", body, &resp); err != nil {
		return nil, err
	}
	return resp.Devices, nil
}

// QuickScan 对单个地址执行快速端口检查。
// 后端没有发现任何开放端口时返回 (nil, nil)，这不是错误。
func (c *Client) QuickScan(ctx context.Context, ip string) (*RawDevice, error) {
	var resp struct {
		Device *RawDevice `json:"device"`
	}
	if err := c.do(ctx, http.MethodGet, "/scan/quick/"+url.PathEscape(ip), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Device, nil
}

// History 拉取后端保存的扫描历史。
func (c *Client) History(ctx context.Context) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	if err := c.do(ctx, http.MethodGet, "/scan/history", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Stats 拉取仪表盘统计数据。
func (c *Client) Stats(ctx context.Context) (*ScanStats, error) {
	var stats ScanStats
	if err := c.do(ctx, http.MethodGet, "/scan/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
