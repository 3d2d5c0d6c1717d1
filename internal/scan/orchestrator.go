package scan

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ajayi-Ayomide/Scanner-Eyes/internal/api"
	"github.com/Ajayi-Ayomide/Scanner-Eyes/internal/models"
	"github.com/Ajayi-Ayomide/Scanner-Eyes/internal/realtime"
	"github.com/Ajayi-Ayomide/Scanner-Eyes/internal/session"
	"github.com/Ajayi-Ayomide/Scanner-Eyes/internal/store"
	"github.com/Ajayi-Ayomide/Scanner-Eyes/internal/targets"
)

var (
	// ErrScanInFlight 表示已有扫描在运行，新请求被拒绝而不是排队。
	ErrScanInFlight = errors.New("a scan is already in progress")
	// ErrMissingTarget 表示手动/快速扫描缺少目标地址，校验在发起任何请求之前完成。
	ErrMissingTarget = errors.New("please enter an IP address")
)

// Run 表示一次扫描从触发到终态的全部状态。
type Run struct {
	ID         string                 `json:"id"`
	Mode       Mode                   `json:"mode"`
	Target     string                 `json:"target,omitempty"`
	Ports      []int                  `json:"ports,omitempty"`
	Status     Status                 `json:"status"`
	Progress   int                    `json:"progress"`
	Message    string                 `json:"message"`
	Results    []models.DeviceFinding `json:"results"`
	StartedAt  time.Time              `json:"startedAt"`
	FinishedAt time.Time              `json:"finishedAt,omitempty"`
}

// Orchestrator 驱动三种扫描模式，保证同一时刻至多一个活动扫描。
// 进度节奏与后端请求是两个独立的完成条件，二者都满足后扫描才进入终态。
type Orchestrator struct {
	api      *api.Client
	sessions *session.Manager
	store    *store.Store
	broker   *realtime.Broker

	// PhaseDelay 覆盖各模式默认的阶段间隔，仅用于测试提速。
	PhaseDelay time.Duration

	mu      sync.Mutex
	current *Run
}

// NewOrchestrator 创建扫描编排器。
func NewOrchestrator(client *api.Client, sessions *session.Manager, st *store.Store, broker *realtime.Broker) *Orchestrator {
	return &Orchestrator{
		api:      client,
		sessions: sessions,
		store:    st,
		broker:   broker,
	}
}

type backendResult struct {
	findings []models.DeviceFinding
	message  string
	err      error
}

// Start 触发一次扫描。已有扫描在运行或目标校验失败时同步拒绝，
// 不产生任何状态迁移，也不会发出网络请求。
func (o *Orchestrator) Start(mode Mode, target, portSpec string) (Run, error) {
	var normalized string
	var ports []int
	switch mode {
	case ModeManual:
		normalized = targets.Normalize(target)
		if normalized == "" {
			return Run{}, ErrMissingTarget
		}
		ports = targets.ParsePorts(portSpec)
	case ModeQuick:
		normalized = targets.Normalize(target)
		if normalized == "" {
			return Run{}, fmt.Errorf("%w for quick scan", ErrMissingTarget)
		}
	case ModeAuto:
	default:
		return Run{}, fmt.Errorf("unknown scan mode %q", mode)
	}

	o.mu.Lock()
	if o.current != nil && o.current.Status == StatusRunning {
		o.mu.Unlock()
		return Run{}, ErrScanInFlight
	}
	run := &Run{
		ID:        uuid.NewString(),
		Mode:      mode,
		Target:    normalized,
		Ports:     ports,
		Status:    StatusRunning,
		Message:   startMessage(mode, normalized),
		Results:   []models.DeviceFinding{},
		StartedAt: time.Now().UTC(),
	}
	o.current = run
	snapshot := *run
	o.mu.Unlock()

	log.Printf("[scan] run %s started mode=%s target=%q", run.ID, mode, normalized)
	o.broker.Publish(realtime.Event{
		Type:  realtime.EventScanStarted,
		RunID: run.ID,
		Payload: map[string]interface{}{
			"mode":    mode,
			"target":  normalized,
			"message": run.Message,
		},
	})

	go o.execute(run)
	return snapshot, nil
}

// Current 返回当前（或最近一次）扫描的快照。
func (o *Orchestrator) Current() (Run, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return Run{}, false
	}
	return *o.current, true
}

func (o *Orchestrator) execute(run *Run) {
	resCh := make(chan backendResult, 1)
	go func() {
		resCh <- o.callBackend(run)
	}()

	phases, delay := phasesFor(run.Mode, run.Target)
	if o.PhaseDelay > 0 {
		delay = o.PhaseDelay
	}
	for _, phase := range phases {
		time.Sleep(delay)
		if !o.advance(run, phase) {
			// 该扫描已被更新的扫描取代，结果不再发布。
			return
		}
	}

	// 阶段序列走完后等待后端响应，两个条件都满足才进入终态。
	o.finish(run, <-resCh)
}

func (o *Orchestrator) advance(run *Run, phase Phase) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != run {
		return false
	}
	run.Progress = phase.Progress
	run.Message = phase.Message
	o.broker.Publish(realtime.Event{
		Type:  realtime.EventScanPhase,
		RunID: run.ID,
		Payload: map[string]interface{}{
			"progress": phase.Progress,
			"message":  phase.Message,
		},
	})
	return true
}

func (o *Orchestrator) callBackend(run *Run) backendResult {
	ctx := context.Background()
	switch run.Mode {
	case ModeManual:
		devices, err := o.api.ManualScan(ctx, run.Target, run.Ports)
		if err != nil {
			return backendResult{err: err}
		}
		findings := normalizeDevices(devices)
		return backendResult{
			findings: findings,
			message:  fmt.Sprintf("Manual scan completed. Found %d devices", len(findings)),
		}
	case ModeQuick:
		device, err := o.api.QuickScan(ctx, run.Target)
		if err != nil {
			return backendResult{err: err}
		}
		if device == nil {
			// 没有开放端口是合法的空结果，不是失败。
			return backendResult{
				findings: []models.DeviceFinding{},
				message:  "No open ports found on this IP address",
			}
		}
		return backendResult{
			findings: []models.DeviceFinding{normalizeDevice(*device, 0)},
			message:  fmt.Sprintf("Quick scan completed for %s", run.Target),
		}
	default:
		devices, err := o.api.AutoScan(ctx)
		if err != nil {
			return backendResult{err: err}
		}
		findings := normalizeDevices(devices)
		return backendResult{
			findings: findings,
			message:  fmt.Sprintf("Network scan completed. Found %d devices", len(findings)),
		}
	}
}

func (o *Orchestrator) finish(run *Run, res backendResult) {
	if res.err != nil {
		o.sessions.HandleAuthError(res.err)
	}

	o.mu.Lock()
	if o.current != run {
		o.mu.Unlock()
		return
	}
	run.FinishedAt = time.Now().UTC()
	if res.err != nil {
		run.Status = StatusFailed
		run.Message = failMessage(run.Mode)
		log.Printf("[scan] run %s failed: %v", run.ID, res.err)
	} else {
		run.Status = StatusSucceeded
		run.Results = res.findings
		run.Message = res.message
		run.Progress = 100
		log.Printf("[scan] run %s succeeded with %d findings", run.ID, len(res.findings))
	}
	record := models.ScanRecord{
		ID:         run.ID,
		Mode:       string(run.Mode),
		Target:     run.Target,
		Status:     string(run.Status),
		Message:    run.Message,
		Results:    run.Results,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
	eventType := realtime.EventScanCompleted
	payload := map[string]interface{}{
		"message": run.Message,
		"devices": len(run.Results),
	}
	if run.Status == StatusFailed {
		eventType = realtime.EventScanFailed
		delete(payload, "devices")
	}
	o.mu.Unlock()

	o.broker.Publish(realtime.Event{Type: eventType, RunID: run.ID, Payload: payload})

	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.store.SaveRun(saveCtx, record); err != nil {
		log.Printf("[scan] save run %s failed: %v", run.ID, err)
	}
}
