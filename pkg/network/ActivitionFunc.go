package network

import (
	"math"
)

// Sigmoid sigmoid激活函数
// 已定义但前向传播和误差传递都不调用，整个网络是线性的
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
