package scan

import (
	"fmt"
	"time"

	"github.com/Ajayi-Ayomide/Scanner-Eyes/internal/api"
	"github.com/Ajayi-Ayomide/Scanner-Eyes/internal/models"
)

// 缺失字段的默认值表。后端各接口返回的设备对象字段都可能缺失，
// 归一化集中在这里完成，调用方不做散落的兜底。
const (
	defaultRiskLevel  = models.RiskMedium
	defaultDeviceType = "Network Device"
	defaultStatus     = "Active"
)

func normalizeDevices(raw []api.RawDevice) []models.DeviceFinding {
	findings := make([]models.DeviceFinding, 0, len(raw))
	for i, device := range raw {
		findings = append(findings, normalizeDevice(device, i))
	}
	return findings
}

func normalizeDevice(raw api.RawDevice, index int) models.DeviceFinding {
	finding := models.DeviceFinding{
		IP:         raw.IP,
		Name:       raw.DeviceName,
		DeviceType: raw.DeviceType,
		RiskLevel:  raw.RiskLevel,
		Status:     raw.Status,
		LastSeen:   parseLastSeen(raw.LastSeen),
	}
	if finding.Name == "" {
		finding.Name = fmt.Sprintf("Device %d", index+1)
	}
	if finding.DeviceType == "" {
		finding.DeviceType = defaultDeviceType
	}
	if finding.RiskLevel == "" {
		finding.RiskLevel = defaultRiskLevel
	}
	if finding.Status == "" {
		finding.Status = defaultStatus
	}

	finding.OpenPorts = make([]models.OpenPort, 0, len(raw.OpenPorts))
	for _, p := range raw.OpenPorts {
		finding.OpenPorts = append(finding.OpenPorts, models.OpenPort{
			Port:    p.Port,
			Service: p.Service,
		})
	}

	finding.Vulnerabilities = make([]models.Vulnerability, 0, len(raw.Vulnerabilities))
	for _, v := range raw.Vulnerabilities {
		finding.Vulnerabilities = append(finding.Vulnerabilities, models.Vulnerability{
			Type:          v.Type,
			Severity:      v.Severity,
			Description:   v.Description,
			FixSuggestion: v.FixSuggestion,
		})
	}
	return finding
}

func parseLastSeen(raw string) time.Time {
	if raw == "" {
		return time.Now().UTC()
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC()
		}
	}
	return time.Now().UTC()
}
