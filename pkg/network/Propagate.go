package network

/*
该文件包含网络的输入和前向传播
*/

// FeedInput 将标量输入广播到输入层的每个节点
func (nn *NeuralNetwork) FeedInput(input float64) {
	for i := 0; i < nn.NodesInEachLayer; i++ {
		nn.activations.Set(0, i, input)
	}
}

// PropagateForward 整个网络的前向传播
// 按层序处理，对每个源节点依次：清空邻居、累加加权和、加偏置。
// 清空发生在每个源节点上，因此邻居最终保留的是最后一个源节点的贡献加偏置。
// 最后一层的邻居是输出向量。不使用激活函数。
func (nn *NeuralNetwork) PropagateForward() {
	width := nn.NodesInEachLayer
	for layer := 0; layer < nn.LayerCount(); layer++ {
		w := nn.weightViews[layer]
		for node := 0; node < width; node++ {
			activation := nn.activations.At(layer, node)

			// 清空邻居
			for edge := 0; edge < width; edge++ {
				nn.setNeighbor(layer, edge, 0)
			}

			// 计算加权和
			for edge := 0; edge < width; edge++ {
				nn.setNeighbor(layer, edge, nn.neighbor(layer, edge)+activation*w.At(node, edge))
			}

			// 偏置
			for edge := 0; edge < width; edge++ {
				nn.setNeighbor(layer, edge, nn.neighbor(layer, edge)+nn.Bias)
			}
		}
	}
}

// FeedForward 输入并前向传播，返回输出向量的副本
func (nn *NeuralNetwork) FeedForward(input float64) []float64 {
	nn.FeedInput(input)
	nn.PropagateForward()
	return nn.Output()
}
