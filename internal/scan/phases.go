package scan

import (
	"fmt"
	"time"
)

// Mode 标识三种互斥的扫描工作流。
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
	ModeQuick  Mode = "quick"
)

// Status 描述一次扫描的生命周期状态。
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Phase 是进度反馈序列中的一步。
// 进度推进只是给界面的节奏展示，与后端的真实耗时无关。
type Phase struct {
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

const (
	autoPhaseDelay   = 1500 * time.Millisecond
	manualPhaseDelay = 1000 * time.Millisecond
	quickPhaseDelay  = 800 * time.Millisecond
)

func phasesFor(mode Mode, target string) ([]Phase, time.Duration) {
	switch mode {
	case ModeManual:
		return []Phase{
			{Progress: 30, Message: fmt.Sprintf("Scanning %s...", target)},
			{Progress: 60, Message: "Checking port vulnerabilities..."},
			{Progress: 90, Message: "Analyzing security posture..."},
			{Progress: 100, Message: "Manual scan completed"},
		}, manualPhaseDelay
	case ModeQuick:
		return []Phase{
			{Progress: 50, Message: fmt.Sprintf("Scanning %s...", target)},
			{Progress: 100, Message: "Quick scan completed"},
		}, quickPhaseDelay
	default:
		return []Phase{
			{Progress: 20, Message: "Discovering network devices..."},
			{Progress: 40, Message: "Scanning common camera ports..."},
			{Progress: 60, Message: "Analyzing device vulnerabilities..."},
			{Progress: 80, Message: "Compiling security report..."},
			{Progress: 100, Message: "Network scan completed"},
		}, autoPhaseDelay
	}
}

func startMessage(mode Mode, target string) string {
	switch mode {
	case ModeManual:
		return "Initializing manual scan..."
	case ModeQuick:
		return fmt.Sprintf("Quick scanning %s...", target)
	default:
		return "Initializing network discovery..."
	}
}

func failMessage(mode Mode) string {
	switch mode {
	case ModeManual:
		return "Manual scan failed. Please check the IP address and try again."
	case ModeQuick:
		return "Quick scan failed. Please check the IP address and try again."
	default:
		return "Auto scan failed. Please check your network connection."
	}
}
