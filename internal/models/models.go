package models

import "time"

// User 表示后端确认过身份的账户信息。
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RiskLevel 定义设备风险等级枚举。
const (
	RiskCritical = "Critical"
	RiskHigh     = "High"
	RiskMedium   = "Medium"
	RiskLow      = "Low"
)

// OpenPort 描述设备上一个开放端口及其服务名。
type OpenPort struct {
	Port    int    `json:"port"`
	Service string `json:"service"`
}

// Vulnerability 描述扫描发现的单条漏洞记录。
type Vulnerability struct {
	Type          string `json:"type"`
	Severity      string `json:"severity"`
	Description   string `json:"description"`
	FixSuggestion string `json:"fixSuggestion,omitempty"`
}

// DeviceFinding 是归一化后的设备扫描结果，展示层只消费该结构。
type DeviceFinding struct {
	IP              string          `json:"ip"`
	Name            string          `json:"name"`
	DeviceType      string          `json:"deviceType"`
	RiskLevel       string          `json:"riskLevel"`
	Status          string          `json:"status"`
	OpenPorts       []OpenPort      `json:"openPorts"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
	LastSeen        time.Time       `json:"lastSeen"`
}

// ScanRecord 表示本地保存的一次已完成扫描。
type ScanRecord struct {
	ID         string          `json:"id"`
	Mode       string          `json:"mode"`
	Target     string          `json:"target"`
	Status     string          `json:"status"`
	Message    string          `json:"message"`
	Results    []DeviceFinding `json:"results"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
}
