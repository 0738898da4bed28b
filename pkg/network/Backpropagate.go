package network

import (
	"gonum.org/v1/gonum/floats"
)

/*
该文件包含反向传播：逐层计算梯度、立即更新权重并累积平均导数
*/

// Backpropagate 从输出侧的层到输入层依次处理
// 对每条边：der = activation * error[edge]，weight += LearningRate * der，
// 平均导数累加器减去 der / TrainingIterations。
// 一层处理完后用该层（已更新的）权重把误差传到前一层，顺序不可调换。
func (nn *NeuralNetwork) Backpropagate() {
	width := nn.NodesInEachLayer
	iterations := float64(nn.TrainingIterations)

	for layer := nn.HiddenLayersCount; layer >= 0; layer-- {
		w := nn.weightViews[layer]
		avg := nn.avgViews[layer]

		for node := 0; node < width; node++ {
			activation := nn.activations.At(layer, node)

			for edge := 0; edge < width; edge++ {
				der := activation * nn.errors.AtVec(edge)

				w.Set(node, edge, w.At(node, edge)+nn.LearningRate*der)
				avg.Set(node, edge, avg.At(node, edge)-der/iterations)
			}
		}

		nn.UpdateErrors(layer)
	}
}

// ApplyAveragedDerivatives weight -= averaged * LearningRate，然后累加器清零
func (nn *NeuralNetwork) ApplyAveragedDerivatives() {
	floats.AddScaled(nn.weights, -nn.LearningRate, nn.averaged)
	clear(nn.averaged)
}
