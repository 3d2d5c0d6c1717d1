package scan

import (
	"testing"
	"time"

	"github.com/Ajayi-Ayomide/Scanner-Eyes/internal/api"
	"github.com/Ajayi-Ayomide/Scanner-Eyes/internal/models"
)

func TestNormalizeDeviceDefaults(t *testing.T) {
	finding := normalizeDevice(api.RawDevice{IP: "192.168.1.50"}, 0)

	if finding.Name != "Device 1" {
		t.Fatalf("expected fallback name, got %q", finding.Name)
	}
	if finding.DeviceType != "Network Device" {
		t.Fatalf("expected fallback type, got %q", finding.DeviceType)
	}
	if finding.RiskLevel != models.RiskMedium {
		t.Fatalf("expected fallback risk, got %q", finding.RiskLevel)
	}
	if finding.Status != "Active" {
		t.Fatalf("expected fallback status, got %q", finding.Status)
	}
	if finding.OpenPorts == nil || len(finding.OpenPorts) != 0 {
		t.Fatalf("expected non-nil empty ports, got %#v", finding.OpenPorts)
	}
	if finding.Vulnerabilities == nil || len(finding.Vulnerabilities) != 0 {
		t.Fatalf("expected non-nil empty vulnerabilities, got %#v", finding.Vulnerabilities)
	}
	if finding.LastSeen.IsZero() {
		t.Fatal("expected last seen to default to current time")
	}
}

func TestNormalizeDeviceKeepsProvidedFields(t *testing.T) {
	raw := api.RawDevice{
		IP:         "192.168.1.64",
		DeviceName: "Hikvision DS-2CD2042",
		DeviceType: "IP Camera",
		RiskLevel:  models.RiskCritical,
		Status:     "Online",
		OpenPorts:  []api.RawPort{{Port: 554, Service: "rtsp"}, {Port: 80, Service: "http"}},
		Vulnerabilities: []api.RawVulnerability{{
			Type:          "Default Credentials",
			Severity:      models.RiskCritical,
			Description:   "Device accepts factory default login",
			FixSuggestion: "Change the admin password",
		}},
		LastSeen: "2025-06-01T10:30:00Z",
	}

	finding := normalizeDevice(raw, 3)

	if finding.Name != "Hikvision DS-2CD2042" {
		t.Fatalf("provided name overwritten: %q", finding.Name)
	}
	if finding.RiskLevel != models.RiskCritical || finding.DeviceType != "IP Camera" || finding.Status != "Online" {
		t.Fatalf("provided fields overwritten: %+v", finding)
	}
	if len(finding.OpenPorts) != 2 || finding.OpenPorts[0].Port != 554 {
		t.Fatalf("ports not carried over: %+v", finding.OpenPorts)
	}
	if len(finding.Vulnerabilities) != 1 || finding.Vulnerabilities[0].FixSuggestion != "Change the admin password" {
		t.Fatalf("vulnerabilities not carried over: %+v", finding.Vulnerabilities)
	}
	want := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	if !finding.LastSeen.Equal(want) {
		t.Fatalf("last seen not parsed, got %v", finding.LastSeen)
	}
}

func TestNormalizeDevicesIndexesFallbackNames(t *testing.T) {
	findings := normalizeDevices([]api.RawDevice{
		{IP: "10.0.0.1"},
		{IP: "10.0.0.2", DeviceName: "Router"},
		{IP: "10.0.0.3"},
	})
	if len(findings) != 3 {
		t.Fatalf("expected 3 findings, got %d", len(findings))
	}
	if findings[0].Name != "Device 1" || findings[1].Name != "Router" || findings[2].Name != "Device 3" {
		t.Fatalf("unexpected names: %q %q %q", findings[0].Name, findings[1].Name, findings[2].Name)
	}
}

func TestParseLastSeenLayouts(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2025-06-01T10:30:00Z", time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)},
		{"2025-06-01T10:30:00.5Z", time.Date(2025, 6, 1, 10, 30, 0, 500000000, time.UTC)},
		{"2025-06-01T10:30:00", time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)},
		{"2025-06-01 10:30:00", time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := parseLastSeen(tc.in); !got.Equal(tc.want) {
			t.Errorf("parseLastSeen(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	// 无法解析的时间戳回退为当前时间，而不是零值。
	if got := parseLastSeen("yesterday"); got.IsZero() {
		t.Error("unparseable timestamp must not produce zero time")
	}
	if got := parseLastSeen(""); got.IsZero() {
		t.Error("empty timestamp must not produce zero time")
	}
}
