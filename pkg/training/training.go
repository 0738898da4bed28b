package training

import (
	"DoublerNet/pkg/network"
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// InputRange 训练输入从 [0, InputRange) 中采样
	InputRange = 10
	// HeldOutInput 保留给最终评估的输入，训练时不会采到
	HeldOutInput = 3
	// MaxEvalInput 评估接受的最大输入
	MaxEvalInput = 1000
)

// ErrDiverged 批次报告中的误差不再是有限数
var ErrDiverged = errors.New("training diverged")

// BatchReport 每个批次结束后的训练报告
type BatchReport struct {
	Batch         int           `json:"batch"`
	Batches       int           `json:"batches"`
	LastInput     int           `json:"last_input"`
	TrainingError float64       `json:"training_error"`
	HeldOutError  float64       `json:"held_out_error"`
	Elapsed       time.Duration `json:"elapsed"`
}

// Observer 接收批次报告
type Observer func(BatchReport)

// Target 目标函数：输入加倍
func Target(input int) int {
	return 2 * input
}

// SampleInput 从 [0,10) 采样，遇到保留输入3时重新采样
func SampleInput(rng network.RandSource) int {
	input := rng.IntN(InputRange)
	for input == HeldOutInput {
		input = rng.IntN(InputRange)
	}
	return input
}

// PrepareData 采样一个训练样本，返回输入和目标输出
func PrepareData(rng network.RandSource) (int, int) {
	input := SampleInput(rng)
	return input, Target(input)
}

// TrainStep 单个样本的训练：输入、前向传播、计算误差、反向传播
func TrainStep(nn *network.NeuralNetwork, input, output int) {
	nn.FeedInput(float64(input))
	nn.PropagateForward()
	nn.CalculateErrors(float64(output))
	nn.Backpropagate()
}

// Train 执行 TrainingIterations 次单样本训练，返回最后一次采样的输入
func Train(nn *network.NeuralNetwork, rng network.RandSource) int {
	last := 0
	for iteration := 0; iteration < nn.TrainingIterations; iteration++ {
		input, output := PrepareData(rng)
		TrainStep(nn, input, output)
		last = input
	}
	return last
}

// SetWeightsToAveraged 把本批次累积的平均导数应用到权重上并清零累加器
func SetWeightsToAveraged(nn *network.NeuralNetwork) {
	nn.ApplyAveragedDerivatives()
}

// Evaluate 对输入做一次前向传播并返回百分比误差，不修改权重
func Evaluate(nn *network.NeuralNetwork, input int) float64 {
	nn.FeedInput(float64(input))
	nn.PropagateForward()
	return nn.GetTotalError(float64(Target(input)))
}

// TrainModel 训练 batches 个批次，每批次后调用 observer（可为 nil）
// 只有 observer 不为 nil 时才可能返回 ErrDiverged
func TrainModel(nn *network.NeuralNetwork, rng network.RandSource, batches int, observer Observer) error {
	return TrainModelContext(context.Background(), nn, rng, batches, observer)
}

// TrainModelContext 与 TrainModel 相同，但在批次之间检查 ctx 是否已取消。
// 有 observer 时，报告的误差不是有限数就返回 ErrDiverged
func TrainModelContext(ctx context.Context, nn *network.NeuralNetwork, rng network.RandSource, batches int, observer Observer) error {
	startTrain := time.Now()
	for batch := 0; batch < batches; batch++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("训练在第 %d 批次被取消: %w", batch, err)
		}

		last := Train(nn, rng)
		SetWeightsToAveraged(nn)

		if observer != nil {
			report := BatchReport{
				Batch:         batch + 1,
				Batches:       batches,
				LastInput:     last,
				TrainingError: Evaluate(nn.Clone(), last),
				HeldOutError:  Evaluate(nn.Clone(), HeldOutInput),
				Elapsed:       time.Since(startTrain),
			}
			// 发散的批次不交给 observer
			if !Finite(report.TrainingError) || !Finite(report.HeldOutError) {
				return fmt.Errorf("%w: 第 %d 批次误差为 %v / %v",
					ErrDiverged, batch+1, report.TrainingError, report.HeldOutError)
			}
			observer(report)
		}
	}
	return nil
}

// Finite 判断误差是否为有限数
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
