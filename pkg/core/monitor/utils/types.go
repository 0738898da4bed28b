package utils

import (
	"DoublerNet/pkg/network"
	"DoublerNet/pkg/training"
	"time"
)

// RunStatus 训练状态
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusFinished  RunStatus = "finished"
	StatusCancelled RunStatus = "cancelled"
	StatusFailed    RunStatus = "failed"
)

// RunRequest 启动训练的请求体，字段缺省时使用配置中的默认值
type RunRequest struct {
	Network *network.Hyperparameters `json:"network"`
	Batches int                      `json:"batches" binding:"omitempty,gte=1"`
	Seed    uint64                   `json:"seed"`
}

// RunInfo 一次训练的状态信息
type RunInfo struct {
	ID              string                  `json:"id"`
	Status          RunStatus               `json:"status"`
	Hyperparameters network.Hyperparameters `json:"hyperparameters"`
	Batches         int                     `json:"batches"`
	Seed            uint64                  `json:"seed"`
	StartTime       time.Time               `json:"start_time"`
	EndTime         time.Time               `json:"end_time,omitempty"`
	Latest          *training.BatchReport   `json:"latest,omitempty"`
	ReportCount     int                     `json:"report_count"`
	Error           string                  `json:"error,omitempty"`
}

// WeightSnapshot 可序列化的权重快照，按 (layer, node, edge) 展开
type WeightSnapshot struct {
	Hyperparameters network.Hyperparameters
	Weights         []float64
}

// WeightsResponse 权重查询的响应
type WeightsResponse struct {
	RunID    string          `json:"run_id"`
	Layers   []network.Layer `json:"layers"`
	Snapshot string          `json:"snapshot"` // base64编码的gob快照
}

// EvaluateResponse 评估的响应
type EvaluateResponse struct {
	RunID      string    `json:"run_id"`
	Input      int       `json:"input"`
	Target     int       `json:"target"`
	Outputs    []float64 `json:"outputs"`
	TotalError float64   `json:"total_error"`
	Encrypted  bool      `json:"encrypted"`
}

// CKKSParamsInfo CKKS参数摘要
type CKKSParamsInfo struct {
	LogN            int    `json:"log_n"`
	LogQ            []int  `json:"log_q"`
	LogP            []int  `json:"log_p"`
	LogDefaultScale int    `json:"log_default_scale"`
	MaxLevel        int    `json:"max_level"`
	Slots           int    `json:"slots"`
	Literal         string `json:"literal"` // base64编码的JSON参数字面量
}
