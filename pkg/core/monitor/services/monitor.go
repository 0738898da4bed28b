package services

import (
	"DoublerNet/pkg/config"
	"DoublerNet/pkg/core/monitor/parameters"
	"DoublerNet/pkg/core/monitor/runs"
	"DoublerNet/pkg/core/monitor/server"
	"DoublerNet/pkg/core/monitor/utils"
	"DoublerNet/pkg/network"
	"DoublerNet/pkg/privacy"
	"DoublerNet/pkg/training"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
)

// Monitor 训练监控服务主结构体
type Monitor struct {
	// 训练管理
	RunManager *runs.Manager

	// CKKS参数管理
	ParameterManager *parameters.Manager

	// HTTP服务器
	HTTPServer *server.HTTPServer

	config *config.Config

	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
}

// NewMonitor 创建新的监控服务实例
func NewMonitor(cfg *config.Config) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	paramManager, err := parameters.NewManager(privacy.DefaultParametersLiteral())
	if err != nil {
		return nil, fmt.Errorf("创建参数管理器失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		RunManager:       runs.NewManager(cfg.Server.RunTTL, cfg.Server.MaxRuns),
		ParameterManager: paramManager,
		HTTPServer:       server.NewHTTPServer(cfg.Server.Port),
		config:           cfg,
		cleanupCtx:       ctx,
		cleanupCancel:    cancel,
	}

	// 设置路由
	m.setupRoutes()

	return m, nil
}

// setupRoutes 设置HTTP路由
func (m *Monitor) setupRoutes() {
	router := m.HTTPServer.GetRouter()

	router.POST("/runs", m.startRunHandler)
	router.GET("/runs", m.getRunsHandler)
	router.GET("/runs/:id", m.getRunHandler)
	router.GET("/runs/:id/history", m.getHistoryHandler)
	router.GET("/runs/:id/weights", m.getWeightsHandler)
	router.GET("/runs/:id/evaluate", m.evaluateHandler)
	router.GET("/runs/:id/evaluate/encrypted", m.evaluateEncryptedHandler)
	router.POST("/runs/:id/cancel", m.cancelRunHandler)
	router.GET("/runs/:id/ws", m.streamHandler)

	router.GET("/params/ckks", m.getCKKSParamsHandler)
	router.GET("/status", m.getStatusHandler)
}

// Start 启动监控服务，阻塞直到HTTP服务器停止
func (m *Monitor) Start() error {
	// 启动过期训练清理协程
	m.RunManager.StartCleanup(m.cleanupCtx)

	return m.HTTPServer.Start()
}

// Stop 取消所有训练并关闭HTTP服务器
func (m *Monitor) Stop(ctx context.Context) error {
	m.RunManager.CancelAll()
	m.cleanupCancel()
	return m.HTTPServer.Stop(ctx)
}

// ==================== 训练管理方法 ====================

// StartRun 按请求启动一次后台训练，缺省字段使用配置值，返回训练ID
func (m *Monitor) StartRun(req utils.RunRequest) (string, error) {
	hp := m.config.Network
	if req.Network != nil {
		hp = *req.Network
	}
	batches := m.config.Batches
	if req.Batches > 0 {
		batches = req.Batches
	}
	seed := req.Seed
	if seed == 0 {
		seed = m.config.SeedOrNow()
	}

	nn, err := network.NewNeuralNetwork(hp)
	if err != nil {
		return "", err
	}
	rng := rand.New(rand.NewPCG(seed, seed))
	nn.Initialize(rng)

	ctx, cancel := context.WithCancel(context.Background())
	id, err := m.RunManager.RegisterRun(hp, batches, seed, cancel)
	if err != nil {
		cancel()
		return "", err
	}
	m.RunManager.SetSnapshot(id, nn.Clone())

	go func() {
		defer cancel()
		observer := func(report training.BatchReport) {
			m.RunManager.Publish(id, report, nn.Clone())
		}

		err := training.TrainModelContext(ctx, nn, rng, batches, observer)
		switch {
		case err == nil:
			m.RunManager.Finish(id, utils.StatusFinished, nil)
		case errors.Is(err, context.Canceled):
			m.RunManager.Finish(id, utils.StatusCancelled, err)
		case errors.Is(err, training.ErrDiverged):
			fmt.Printf("训练 %s 发散: %v\n", id, err)
			m.RunManager.Finish(id, utils.StatusFailed, err)
		default:
			m.RunManager.Finish(id, utils.StatusFailed, err)
		}
	}()

	return id, nil
}

// EvaluateRun 在训练的最新快照上评估输入
func (m *Monitor) EvaluateRun(id string, input int) (utils.EvaluateResponse, error) {
	snapshot, err := m.RunManager.GetSnapshot(id)
	if err != nil {
		return utils.EvaluateResponse{}, err
	}
	totalError := training.Evaluate(snapshot, input)
	outputs := snapshot.Output()
	if err := checkFinite(totalError, outputs); err != nil {
		return utils.EvaluateResponse{}, err
	}
	return utils.EvaluateResponse{
		RunID:      id,
		Input:      input,
		Target:     training.Target(input),
		Outputs:    outputs,
		TotalError: totalError,
	}, nil
}

// checkFinite JSON无法编码NaN和Inf，评估结果必须全部是有限数
func checkFinite(totalError float64, outputs []float64) error {
	if !training.Finite(totalError) {
		return fmt.Errorf("%w: 总误差为 %v", training.ErrDiverged, totalError)
	}
	for i, o := range outputs {
		if !training.Finite(o) {
			return fmt.Errorf("%w: 输出 %d 为 %v", training.ErrDiverged, i, o)
		}
	}
	return nil
}

// EvaluateRunEncrypted 在CKKS密文上评估训练的最新快照
func (m *Monitor) EvaluateRunEncrypted(id string, input int) (utils.EvaluateResponse, error) {
	snapshot, err := m.RunManager.GetSnapshot(id)
	if err != nil {
		return utils.EvaluateResponse{}, err
	}
	ee, err := m.ParameterManager.GetEvaluator()
	if err != nil {
		return utils.EvaluateResponse{}, err
	}
	outputs, err := ee.Evaluate(snapshot, float64(input))
	if err != nil {
		return utils.EvaluateResponse{}, err
	}
	totalError := privacy.TotalError(outputs, float64(training.Target(input)))
	if err := checkFinite(totalError, outputs); err != nil {
		return utils.EvaluateResponse{}, err
	}
	return utils.EvaluateResponse{
		RunID:      id,
		Input:      input,
		Target:     training.Target(input),
		Outputs:    outputs,
		TotalError: totalError,
		Encrypted:  true,
	}, nil
}

// WeightsOf 获取训练最新快照的分层权重和gob快照
func (m *Monitor) WeightsOf(id string) (utils.WeightsResponse, error) {
	snapshot, err := m.RunManager.GetSnapshot(id)
	if err != nil {
		return utils.WeightsResponse{}, err
	}
	data, err := utils.EncodeSnapshot(utils.WeightSnapshot{
		Hyperparameters: snapshot.Hyperparameters,
		Weights:         snapshot.Weights(),
	})
	if err != nil {
		return utils.WeightsResponse{}, fmt.Errorf("序列化快照失败: %v", err)
	}
	return utils.WeightsResponse{
		RunID:    id,
		Layers:   snapshot.Layers(),
		Snapshot: utils.EncodeToBase64(data),
	}, nil
}

// GetLocalIP 获取本机IP地址
func (m *Monitor) GetLocalIP() string {
	return m.HTTPServer.GetLocalIP()
}
