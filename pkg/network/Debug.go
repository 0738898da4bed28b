package network

import (
	"fmt"
	"io"
	"strings"
)

// PrintNet 打印每层每个节点的所有边权重
func (nn *NeuralNetwork) PrintNet(w io.Writer) {
	fmt.Fprintf(w, "Net:\n")
	for layer := 0; layer < nn.LayerCount(); layer++ {
		fmt.Fprintf(w, "Layer no:%d\n", layer)
		for node := 0; node < nn.NodesInEachLayer; node++ {
			fmt.Fprintf(w, "\tNode no:%d\n", node)
			for edge := 0; edge < nn.NodesInEachLayer; edge++ {
				fmt.Fprintf(w, "\t\tEdge no:%d == %f\n", edge, nn.Weight(layer, node, edge))
			}
		}
	}
}

func (nn *NeuralNetwork) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "网络结构: %d个隐藏层, 每层%d个节点, 偏置=%g, 每批迭代=%d, 学习率=%g\n",
		nn.HiddenLayersCount, nn.NodesInEachLayer, nn.Bias, nn.TrainingIterations, nn.LearningRate)
	nn.PrintNet(&sb)
	return sb.String()
}
