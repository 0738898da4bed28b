package network

/*
网络没有非线性，输出是广播标量输入的仿射函数：
output[i] = Slope[i] * x + Intercept[i]
*/

// AffineForm 每个输出单元的斜率和截距
type AffineForm struct {
	Slope     []float64 `json:"slope"`
	Intercept []float64 `json:"intercept"`
}

// AffineForm 在网络副本上分别输入0和1求出仿射形式，不修改原网络
func (nn *NeuralNetwork) AffineForm() AffineForm {
	scratch := nn.Clone()
	intercept := scratch.FeedForward(0)
	one := scratch.FeedForward(1)

	slope := make([]float64, len(one))
	for i := range slope {
		slope[i] = one[i] - intercept[i]
	}
	return AffineForm{Slope: slope, Intercept: intercept}
}

// Apply 用仿射形式计算输入 x 的输出
func (af AffineForm) Apply(x float64) []float64 {
	out := make([]float64, len(af.Slope))
	for i := range out {
		out[i] = af.Slope[i]*x + af.Intercept[i]
	}
	return out
}
