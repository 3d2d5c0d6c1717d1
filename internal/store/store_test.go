package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Ajayi-Ayomide/Scanner-Eyes/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	key := []byte("0123456789abcdef0123456789abcdef")
	s, err := New(filepath.Join(t.TempDir(), "test.db"), key)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewRejectsShortKey(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "test.db"), []byte("short")); err == nil {
		t.Fatal("expected error for short seal key")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	token, err := s.LoadToken(ctx)
	if err != nil {
		t.Fatalf("LoadToken() failed: %v", err)
	}
	if token != "" {
		t.Fatalf("expected empty token before save, got %q", token)
	}

	if err := s.SaveToken(ctx, "first-token"); err != nil {
		t.Fatalf("SaveToken() failed: %v", err)
	}
	token, err = s.LoadToken(ctx)
	if err != nil {
		t.Fatalf("LoadToken() failed: %v", err)
	}
	if token != "first-token" {
		t.Fatalf("expected %q, got %q", "first-token", token)
	}

	// 再次保存应覆盖旧值。
	if err := s.SaveToken(ctx, "second-token"); err != nil {
		t.Fatalf("SaveToken() overwrite failed: %v", err)
	}
	token, _ = s.LoadToken(ctx)
	if token != "second-token" {
		t.Fatalf("expected %q after overwrite, got %q", "second-token", token)
	}

	if err := s.DeleteToken(ctx); err != nil {
		t.Fatalf("DeleteToken() failed: %v", err)
	}
	token, _ = s.LoadToken(ctx)
	if token != "" {
		t.Fatalf("expected empty token after delete, got %q", token)
	}

	// 删除不存在的令牌也应成功。
	if err := s.DeleteToken(ctx); err != nil {
		t.Fatalf("repeated DeleteToken() failed: %v", err)
	}
}

func TestTokenSealedAtRest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveToken(ctx, "secret-token"); err != nil {
		t.Fatalf("SaveToken() failed: %v", err)
	}

	var stored string
	if err := s.DB.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, tokenKey).Scan(&stored); err != nil {
		t.Fatalf("read raw value: %v", err)
	}
	if stored == "secret-token" {
		t.Fatal("token stored in plaintext")
	}
}

func TestUnsealableTokenTreatedAsAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// 模拟密钥轮换后遗留的旧密文：直接写入无法解密的值。
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)`, tokenKey, "bm90LWEtcmVhbC1ib3g=")
	if err != nil {
		t.Fatalf("insert garbage value: %v", err)
	}

	token, err := s.LoadToken(ctx)
	if err != nil {
		t.Fatalf("LoadToken() failed: %v", err)
	}
	if token != "" {
		t.Fatalf("expected unsealable token to read as absent, got %q", token)
	}
}

func TestSaveRunListRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	records := []models.ScanRecord{
		{ID: "run-1", Mode: "auto", Status: "succeeded", Message: "done", StartedAt: base, FinishedAt: base.Add(8 * time.Second)},
		{ID: "run-2", Mode: "quick", Target: "192.168.1.10", Status: "failed", StartedAt: base.Add(time.Minute), FinishedAt: base.Add(time.Minute + 2*time.Second)},
		{
			ID: "run-3", Mode: "manual", Target: "192.168.1.20", Status: "succeeded",
			Results: []models.DeviceFinding{{
				IP: "192.168.1.20", Name: "Device 1", DeviceType: "Network Device",
				RiskLevel: models.RiskHigh, Status: "Active",
				OpenPorts:       []models.OpenPort{{Port: 554, Service: "rtsp"}},
				Vulnerabilities: []models.Vulnerability{},
				LastSeen:        base,
			}},
			StartedAt: base.Add(2 * time.Minute), FinishedAt: base.Add(2*time.Minute + 4*time.Second),
		},
	}
	for _, rec := range records {
		if err := s.SaveRun(ctx, rec); err != nil {
			t.Fatalf("SaveRun(%s) failed: %v", rec.ID, err)
		}
	}

	got, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	// 按开始时间倒序。
	for i, wantID := range []string{"run-3", "run-2", "run-1"} {
		if got[i].ID != wantID {
			t.Fatalf("expected record %d to be %s, got %s", i, wantID, got[i].ID)
		}
	}

	// nil 结果落盘后读出应为非 nil 空列表。
	if got[1].Results == nil {
		t.Fatal("expected non-nil empty results for run without findings")
	}
	if len(got[0].Results) != 1 || got[0].Results[0].RiskLevel != models.RiskHigh {
		t.Fatalf("manual run results did not round-trip: %+v", got[0].Results)
	}
	if len(got[0].Results[0].OpenPorts) != 1 || got[0].Results[0].OpenPorts[0].Port != 554 {
		t.Fatalf("open ports did not round-trip: %+v", got[0].Results[0].OpenPorts)
	}

	limited, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns(2) failed: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected limit to cap records at 2, got %d", len(limited))
	}
}
