package network

import (
	"gonum.org/v1/gonum/stat"
)

/*
该文件包含误差计算、误差反向传递和总误差统计
*/

// CalculateErrors 输出层误差 error[i] = 2 * (trueOutput - output[i])
// 即未减半的平方误差对输出的导数（取反）
func (nn *NeuralNetwork) CalculateErrors(trueOutput float64) {
	for i := 0; i < nn.NodesInEachLayer; i++ {
		nn.errors.SetVec(i, 2.0*(trueOutput-nn.output.AtVec(i)))
	}
}

// UpdateErrors 用 toWhichLayer 层当前的权重把误差向前一层传递
// new_error[node] = Σ_edge weight[node][edge] * error[edge]
func (nn *NeuralNetwork) UpdateErrors(toWhichLayer int) {
	nn.scratch.MulVec(nn.weightViews[toWhichLayer], nn.errors)
	nn.errors.CopyVec(nn.scratch)
}

// GetTotalError 计算误差后返回 100 * mean(error^2)，仅用于报告
func (nn *NeuralNetwork) GetTotalError(trueOutput float64) float64 {
	nn.CalculateErrors(trueOutput)

	squared := make([]float64, nn.NodesInEachLayer)
	for i := range squared {
		e := nn.errors.AtVec(i)
		squared[i] = e * e
	}
	return stat.Mean(squared, nil) * 100
}
