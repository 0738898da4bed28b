package network

import (
	"gonum.org/v1/gonum/mat"
)

/*
该文件包含节点和层的只读视图，便于打印、序列化和测试
*/

// Node 一个节点：激活值和指向下一层每个节点的边权重
type Node struct {
	Activation float64   `json:"activation"`
	Edges      []float64 `json:"edges"`
}

// Layer 一层节点，所有层宽度相同
type Layer struct {
	Index int    `json:"index"`
	Nodes []Node `json:"nodes"`
}

// Node 返回某层某节点的副本
func (nn *NeuralNetwork) Node(layer, node int) Node {
	edges := make([]float64, nn.NodesInEachLayer)
	mat.Row(edges, node, nn.weightViews[layer])
	return Node{
		Activation: nn.activations.At(layer, node),
		Edges:      edges,
	}
}

// Layer 返回某层的副本
func (nn *NeuralNetwork) Layer(index int) Layer {
	nodes := make([]Node, nn.NodesInEachLayer)
	for i := range nodes {
		nodes[i] = nn.Node(index, i)
	}
	return Layer{Index: index, Nodes: nodes}
}

// Layers 返回所有活跃层的副本
func (nn *NeuralNetwork) Layers() []Layer {
	layers := make([]Layer, nn.LayerCount())
	for i := range layers {
		layers[i] = nn.Layer(i)
	}
	return layers
}

// LayerWeights 返回某层权重矩阵的副本（行为源节点，列为边）
func (nn *NeuralNetwork) LayerWeights(layer int) *mat.Dense {
	return mat.DenseCopyOf(nn.weightViews[layer])
}
