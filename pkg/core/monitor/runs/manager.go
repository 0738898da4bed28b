package runs

import (
	"DoublerNet/pkg/core/monitor/utils"
	"DoublerNet/pkg/network"
	"DoublerNet/pkg/training"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrRunNotFound 训练不存在
	ErrRunNotFound = errors.New("run not found")
	// ErrTooManyRuns 同时运行的训练数达到上限
	ErrTooManyRuns = errors.New("too many running runs")
	// ErrRunNotRunning 训练已结束
	ErrRunNotRunning = errors.New("run is not running")
)

// subscriberBuffer 每个订阅者的缓冲区，满了就丢弃报告，不阻塞训练
const subscriberBuffer = 64

// run 一次训练的内部状态，网络本身只属于训练协程，这里只保存快照
type run struct {
	info     utils.RunInfo
	history  []training.BatchReport
	snapshot *network.NeuralNetwork
	cancel   context.CancelFunc

	subscribers map[int]chan training.BatchReport
	nextSubID   int
}

// Manager 训练管理器
type Manager struct {
	runs map[string]*run
	mu   sync.RWMutex

	ttl             time.Duration // 已结束训练的保留时间，0表示一直保留
	maxRuns         int           // 同时运行的训练数上限
	cleanupInterval time.Duration // 清理间隔
}

// NewManager 创建新的训练管理器
func NewManager(ttl time.Duration, maxRuns int) *Manager {
	return &Manager{
		runs:            make(map[string]*run),
		ttl:             ttl,
		maxRuns:         maxRuns,
		cleanupInterval: 5 * time.Second,
	}
}

// RegisterRun 登记一次新的训练，返回训练ID
func (m *Manager) RegisterRun(hp network.Hyperparameters, batches int, seed uint64, cancel context.CancelFunc) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.runningCountLocked() >= m.maxRuns {
		return "", fmt.Errorf("%w: %d", ErrTooManyRuns, m.maxRuns)
	}

	id := uuid.New().String()
	m.runs[id] = &run{
		info: utils.RunInfo{
			ID:              id,
			Status:          utils.StatusRunning,
			Hyperparameters: hp,
			Batches:         batches,
			Seed:            seed,
			StartTime:       time.Now(),
		},
		cancel:      cancel,
		subscribers: make(map[int]chan training.BatchReport),
	}
	fmt.Printf("训练 %s 已登记: %d 批次, 种子 %d\n", id, batches, seed)
	return id, nil
}

// SetSnapshot 更新训练的权重快照，调用方需传入副本
func (m *Manager) SetSnapshot(id string, snapshot *network.NeuralNetwork) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.runs[id]; ok {
		r.snapshot = snapshot
	}
}

// Publish 记录批次报告和快照，并推送给订阅者
func (m *Manager) Publish(id string, report training.BatchReport, snapshot *network.NeuralNetwork) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.runs[id]
	if !ok {
		return
	}
	// JSON无法编码NaN和Inf，这样的报告不进入历史
	if !training.Finite(report.TrainingError) || !training.Finite(report.HeldOutError) {
		fmt.Printf("训练 %s 第 %d 批次误差不是有限数，已丢弃\n", id, report.Batch)
		return
	}
	r.history = append(r.history, report)
	r.info.Latest = &r.history[len(r.history)-1]
	r.info.ReportCount = len(r.history)
	r.snapshot = snapshot

	for _, ch := range r.subscribers {
		select {
		case ch <- report:
		default:
		}
	}
}

// Finish 结束训练并关闭所有订阅
func (m *Manager) Finish(id string, status utils.RunStatus, runErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.runs[id]
	if !ok {
		return
	}
	r.info.Status = status
	r.info.EndTime = time.Now()
	if runErr != nil {
		r.info.Error = runErr.Error()
	}
	for subID, ch := range r.subscribers {
		close(ch)
		delete(r.subscribers, subID)
	}
	fmt.Printf("训练 %s 结束: %s\n", id, status)
}

// Cancel 取消正在运行的训练
func (m *Manager) Cancel(id string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if r.info.Status != utils.StatusRunning {
		return fmt.Errorf("%w: %s", ErrRunNotRunning, id)
	}
	r.cancel()
	return nil
}

// CancelAll 取消所有正在运行的训练
func (m *Manager) CancelAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.runs {
		if r.info.Status == utils.StatusRunning {
			r.cancel()
		}
	}
}

// GetRun 获取训练信息
func (m *Manager) GetRun(id string) (utils.RunInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return utils.RunInfo{}, false
	}
	return r.info, true
}

// GetRuns 获取所有训练信息，按开始时间排序
func (m *Manager) GetRuns() []utils.RunInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]utils.RunInfo, 0, len(m.runs))
	for _, r := range m.runs {
		infos = append(infos, r.info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartTime.Before(infos[j].StartTime)
	})
	return infos
}

// GetHistory 获取训练的全部批次报告
func (m *Manager) GetHistory(id string) ([]training.BatchReport, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, false
	}
	history := make([]training.BatchReport, len(r.history))
	copy(history, r.history)
	return history, true
}

// GetSnapshot 获取最新权重快照的副本
func (m *Manager) GetSnapshot(id string) (*network.NeuralNetwork, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if r.snapshot == nil {
		return nil, fmt.Errorf("训练 %s 尚无快照", id)
	}
	return r.snapshot.Clone(), nil
}

// Subscribe 订阅训练的批次报告
// 返回订阅时已有的历史报告和后续报告的通道，训练结束时通道关闭
func (m *Manager) Subscribe(id string) ([]training.BatchReport, <-chan training.BatchReport, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.runs[id]
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	history := make([]training.BatchReport, len(r.history))
	copy(history, r.history)

	ch := make(chan training.BatchReport, subscriberBuffer)
	if r.info.Status != utils.StatusRunning {
		close(ch)
		return history, ch, func() {}, nil
	}

	subID := r.nextSubID
	r.nextSubID++
	r.subscribers[subID] = ch

	unsubscribe := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := r.subscribers[subID]; ok {
			close(c)
			delete(r.subscribers, subID)
		}
	}
	return history, ch, unsubscribe, nil
}

// RunningCount 正在运行的训练数
func (m *Manager) RunningCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runningCountLocked()
}

func (m *Manager) runningCountLocked() int {
	count := 0
	for _, r := range m.runs {
		if r.info.Status == utils.StatusRunning {
			count++
		}
	}
	return count
}

// CleanupFinishedRuns 清理结束超过ttl的训练
func (m *Manager) CleanupFinishedRuns() {
	if m.ttl <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for id, r := range m.runs {
		if r.info.Status != utils.StatusRunning && now.Sub(r.info.EndTime) > m.ttl {
			delete(m.runs, id)
			fmt.Printf("训练 %s 已过期清理\n", id)
		}
	}
}

// StartCleanup 启动清理协程，ctx取消时退出
func (m *Manager) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.CleanupFinishedRuns()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// GetStatus 获取管理器状态
func (m *Manager) GetStatus() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := map[utils.RunStatus]int{}
	for _, r := range m.runs {
		counts[r.info.Status]++
	}
	return map[string]interface{}{
		"total_runs":     len(m.runs),
		"running_runs":   counts[utils.StatusRunning],
		"finished_runs":  counts[utils.StatusFinished],
		"cancelled_runs": counts[utils.StatusCancelled],
		"failed_runs":    counts[utils.StatusFailed],
		"max_runs":       m.maxRuns,
		"run_ttl":        m.ttl.Seconds(),
	}
}
