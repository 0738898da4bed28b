package network

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

/*
该文件包含整个神经网络的状态定义、容量校验和初始化方法
*/

const (
	// MaxLayerNodeCount 每层节点数上限
	MaxLayerNodeCount = 100
	// MaxLayersCount 层数上限（隐藏层数+1）
	MaxLayersCount = 10
)

var (
	// ErrCapacityExceeded 超参数超出固定存储容量
	ErrCapacityExceeded = errors.New("network capacity exceeded")
	// ErrInvalidHyperparameters 超参数不合法
	ErrInvalidHyperparameters = errors.New("invalid hyperparameters")
)

// RandSource 随机数来源，初始化权重和采样训练输入时使用
// math/rand/v2 的 *rand.Rand 满足该接口
type RandSource interface {
	Float64() float64
	IntN(n int) int
}

// Hyperparameters 网络超参数
type Hyperparameters struct {
	HiddenLayersCount  int     `json:"hidden_layers_count" yaml:"hidden_layers_count" validate:"gte=0,lt=10"`
	NodesInEachLayer   int     `json:"nodes_in_each_layer" yaml:"nodes_in_each_layer" validate:"gte=1,lte=100"`
	Bias               float64 `json:"bias" yaml:"bias"`
	TrainingIterations int     `json:"training_iterations" yaml:"training_iterations" validate:"gte=1"`
	LearningRate       float64 `json:"learning_rate" yaml:"learning_rate" validate:"gt=0"`
}

// DefaultHyperparameters 返回默认超参数：2个隐藏层，每层10个节点
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{
		HiddenLayersCount:  2,
		NodesInEachLayer:   10,
		Bias:               0,
		TrainingIterations: 50,
		LearningRate:       0.00001,
	}
}

// Validate 校验超参数是否在容量范围内
func (hp Hyperparameters) Validate() error {
	if hp.HiddenLayersCount < 0 || hp.NodesInEachLayer <= 0 || hp.TrainingIterations <= 0 {
		return fmt.Errorf("%w: hidden=%d nodes=%d iterations=%d",
			ErrInvalidHyperparameters, hp.HiddenLayersCount, hp.NodesInEachLayer, hp.TrainingIterations)
	}
	if !(hp.LearningRate > 0) || math.IsInf(hp.LearningRate, 0) || math.IsNaN(hp.Bias) || math.IsInf(hp.Bias, 0) {
		return fmt.Errorf("%w: learning_rate=%g bias=%g", ErrInvalidHyperparameters, hp.LearningRate, hp.Bias)
	}
	if hp.HiddenLayersCount+1 > MaxLayersCount {
		return fmt.Errorf("%w: %d layers > %d", ErrCapacityExceeded, hp.HiddenLayersCount+1, MaxLayersCount)
	}
	if hp.NodesInEachLayer > MaxLayerNodeCount {
		return fmt.Errorf("%w: %d nodes > %d", ErrCapacityExceeded, hp.NodesInEachLayer, MaxLayerNodeCount)
	}
	return nil
}

// NeuralNetwork 网络状态
// 权重和平均导数分别存放在一块连续内存中，按 (layer, node, edge) 排列，
// 每层通过 gonum 的 mat.Dense 视图访问，行为源节点，列为边
type NeuralNetwork struct {
	Hyperparameters

	activations *mat.Dense    // layers × width
	weights     []float64     // layers × width × width
	averaged    []float64     // 与 weights 同形状
	weightViews []*mat.Dense  // 每层 width × width 视图
	avgViews    []*mat.Dense  // 每层 width × width 视图
	output      *mat.VecDense // 输出向量
	errors      *mat.VecDense // 误差向量
	scratch     *mat.VecDense // UpdateErrors 使用的临时向量
}

// NewNeuralNetwork 创建零初始化的网络，超出容量时返回 ErrCapacityExceeded
func NewNeuralNetwork(hp Hyperparameters) (*NeuralNetwork, error) {
	if err := hp.Validate(); err != nil {
		return nil, err
	}

	layers := hp.HiddenLayersCount + 1
	width := hp.NodesInEachLayer

	nn := &NeuralNetwork{
		Hyperparameters: hp,
		activations:     mat.NewDense(layers, width, nil),
		weights:         make([]float64, layers*width*width),
		averaged:        make([]float64, layers*width*width),
		output:          mat.NewVecDense(width, nil),
		errors:          mat.NewVecDense(width, nil),
		scratch:         mat.NewVecDense(width, nil),
	}
	nn.buildViews()
	return nn, nil
}

// buildViews 在连续内存上建立每层的矩阵视图，mat.NewDense 不会复制底层切片
func (nn *NeuralNetwork) buildViews() {
	layers := nn.LayerCount()
	size := nn.NodesInEachLayer * nn.NodesInEachLayer
	nn.weightViews = make([]*mat.Dense, layers)
	nn.avgViews = make([]*mat.Dense, layers)
	for l := 0; l < layers; l++ {
		nn.weightViews[l] = mat.NewDense(nn.NodesInEachLayer, nn.NodesInEachLayer, nn.weights[l*size:(l+1)*size])
		nn.avgViews[l] = mat.NewDense(nn.NodesInEachLayer, nn.NodesInEachLayer, nn.averaged[l*size:(l+1)*size])
	}
}

// Initialize 激活值清零，所有边权重取 [0,1) 均匀分布
func (nn *NeuralNetwork) Initialize(rng RandSource) {
	nn.activations.Zero()
	for l := 0; l < nn.LayerCount(); l++ {
		w := nn.weightViews[l]
		for node := 0; node < nn.NodesInEachLayer; node++ {
			for edge := 0; edge < nn.NodesInEachLayer; edge++ {
				w.Set(node, edge, rng.Float64())
			}
		}
	}
}

// LayerCount 活跃层数（隐藏层数+1）
func (nn *NeuralNetwork) LayerCount() int {
	return nn.HiddenLayersCount + 1
}

// Width 每层节点数
func (nn *NeuralNetwork) Width() int {
	return nn.NodesInEachLayer
}

// Weight 返回 (layer, node, edge) 处的权重
func (nn *NeuralNetwork) Weight(layer, node, edge int) float64 {
	return nn.weightViews[layer].At(node, edge)
}

// SetWeight 设置 (layer, node, edge) 处的权重
func (nn *NeuralNetwork) SetWeight(layer, node, edge int, v float64) {
	nn.weightViews[layer].Set(node, edge, v)
}

// AveragedDerivative 返回 (layer, node, edge) 处累积的平均导数
func (nn *NeuralNetwork) AveragedDerivative(layer, node, edge int) float64 {
	return nn.avgViews[layer].At(node, edge)
}

// Activation 返回某层某节点的激活值
func (nn *NeuralNetwork) Activation(layer, node int) float64 {
	return nn.activations.At(layer, node)
}

// Output 返回输出向量的副本
func (nn *NeuralNetwork) Output() []float64 {
	return copyVec(nn.output)
}

// Errors 返回误差向量的副本
func (nn *NeuralNetwork) Errors() []float64 {
	return copyVec(nn.errors)
}

// Weights 返回所有权重的副本，按 (layer, node, edge) 顺序展开
func (nn *NeuralNetwork) Weights() []float64 {
	out := make([]float64, len(nn.weights))
	copy(out, nn.weights)
	return out
}

// AveragedDerivatives 返回平均导数累加器的副本
func (nn *NeuralNetwork) AveragedDerivatives() []float64 {
	out := make([]float64, len(nn.averaged))
	copy(out, nn.averaged)
	return out
}

// Clone 深拷贝网络状态
func (nn *NeuralNetwork) Clone() *NeuralNetwork {
	c := &NeuralNetwork{
		Hyperparameters: nn.Hyperparameters,
		activations:     mat.DenseCopyOf(nn.activations),
		weights:         nn.Weights(),
		averaged:        nn.AveragedDerivatives(),
		output:          mat.VecDenseCopyOf(nn.output),
		errors:          mat.VecDenseCopyOf(nn.errors),
		scratch:         mat.NewVecDense(nn.NodesInEachLayer, nil),
	}
	c.buildViews()
	return c
}

// neighbor 返回 layer 层的边 edge 指向的目标位置：下一层节点激活值，或最后一层时的输出向量
func (nn *NeuralNetwork) neighbor(layer, edge int) float64 {
	if layer == nn.HiddenLayersCount {
		return nn.output.AtVec(edge)
	}
	return nn.activations.At(layer+1, edge)
}

func (nn *NeuralNetwork) setNeighbor(layer, edge int, v float64) {
	if layer == nn.HiddenLayersCount {
		nn.output.SetVec(edge, v)
		return
	}
	nn.activations.Set(layer+1, edge, v)
}

func copyVec(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
