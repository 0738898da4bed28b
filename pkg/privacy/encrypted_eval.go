package privacy

import (
	"DoublerNet/pkg/network"
	"fmt"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/ring"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
	"gonum.org/v1/gonum/stat"
)

/*
该文件实现训练后网络在CKKS密文上的评估。
网络是线性的，输出是广播输入的仿射函数，所以一次明文乘法加一次明文加法即可：
Enc(x) * slope + intercept
*/

// DefaultParametersLiteral 默认CKKS参数，只需要一层乘法深度
func DefaultParametersLiteral() ckks.ParametersLiteral {
	return ckks.ParametersLiteral{
		LogN:            12,
		LogQ:            []int{55, 40},
		LogP:            []int{61},
		LogDefaultScale: 40,
		RingType:        ring.Standard,
	}
}

// EncryptedEvaluator 持有同态加密组件，私钥仅用于解密结果
type EncryptedEvaluator struct {
	Params    ckks.Parameters
	Encoder   *ckks.Encoder
	Encryptor *rlwe.Encryptor
	Decryptor *rlwe.Decryptor
	Evaluator *ckks.Evaluator
}

// NewEncryptedEvaluator 根据参数字面量生成密钥和加密组件
func NewEncryptedEvaluator(literal ckks.ParametersLiteral) (*EncryptedEvaluator, error) {
	params, err := ckks.NewParametersFromLiteral(literal)
	if err != nil {
		return nil, fmt.Errorf("参数创建失败: %v", err)
	}
	if params.MaxLevel() < 1 {
		return nil, fmt.Errorf("参数至少需要一层乘法深度，当前MaxLevel=%d", params.MaxLevel())
	}

	keyGen := rlwe.NewKeyGenerator(params)
	sk := keyGen.GenSecretKeyNew()
	pk := keyGen.GenPublicKeyNew(sk)

	return &EncryptedEvaluator{
		Params:    params,
		Encoder:   ckks.NewEncoder(params),
		Encryptor: ckks.NewEncryptor(params, pk),
		Decryptor: ckks.NewDecryptor(params, sk),
		Evaluator: ckks.NewEvaluator(params, nil),
	}, nil
}

// Slots 每个密文可容纳的槽数
func (ee *EncryptedEvaluator) Slots() int {
	return 1 << ee.Params.LogMaxSlots()
}

func (ee *EncryptedEvaluator) checkWidth(width int) error {
	if width <= 0 || width > ee.Slots() {
		return fmt.Errorf("宽度 %d 超出槽数 %d", width, ee.Slots())
	}
	return nil
}

// EncryptInput 把标量输入广播到前 width 个槽并加密
func (ee *EncryptedEvaluator) EncryptInput(input float64, width int) (*rlwe.Ciphertext, error) {
	if err := ee.checkWidth(width); err != nil {
		return nil, err
	}

	values := make([]complex128, width)
	for i := range values {
		values[i] = complex(input, 0)
	}

	pt := ckks.NewPlaintext(ee.Params, ee.Params.MaxLevel())
	if err := ee.Encoder.Encode(values, pt); err != nil {
		return nil, fmt.Errorf("编码失败: %v", err)
	}

	ct, err := ee.Encryptor.EncryptNew(pt)
	if err != nil {
		return nil, fmt.Errorf("加密失败: %v", err)
	}
	return ct, nil
}

// EvaluateAffine 在密文上计算 ct * slope + intercept，结果写回新的密文
func (ee *EncryptedEvaluator) EvaluateAffine(ct *rlwe.Ciphertext, af network.AffineForm) (*rlwe.Ciphertext, error) {
	width := len(af.Slope)
	if err := ee.checkWidth(width); err != nil {
		return nil, err
	}

	out := ct.CopyNew()

	slopePt := ckks.NewPlaintext(ee.Params, out.Level())
	if err := ee.Encoder.Encode(toComplex(af.Slope), slopePt); err != nil {
		return nil, fmt.Errorf("斜率编码失败: %v", err)
	}
	if err := ee.Evaluator.Mul(out, slopePt, out); err != nil {
		return nil, fmt.Errorf("密文乘法失败: %v", err)
	}
	if err := ee.Evaluator.Rescale(out, out); err != nil {
		return nil, fmt.Errorf("重新缩放失败: %v", err)
	}

	// 截距按密文当前的层级和缩放因子编码，才能直接相加
	interceptPt := ckks.NewPlaintext(ee.Params, out.Level())
	interceptPt.Scale = out.Scale
	if err := ee.Encoder.Encode(toComplex(af.Intercept), interceptPt); err != nil {
		return nil, fmt.Errorf("截距编码失败: %v", err)
	}
	if err := ee.Evaluator.Add(out, interceptPt, out); err != nil {
		return nil, fmt.Errorf("密文加法失败: %v", err)
	}
	return out, nil
}

// DecryptOutput 解密并取前 width 个槽的实部
func (ee *EncryptedEvaluator) DecryptOutput(ct *rlwe.Ciphertext, width int) ([]float64, error) {
	if err := ee.checkWidth(width); err != nil {
		return nil, err
	}

	decoded := make([]complex128, ee.Slots())
	if err := ee.Encoder.Decode(ee.Decryptor.DecryptNew(ct), decoded); err != nil {
		return nil, fmt.Errorf("解码失败: %v", err)
	}

	out := make([]float64, width)
	for i := range out {
		out[i] = real(decoded[i])
	}
	return out, nil
}

// Evaluate 加密输入、密文上评估网络、解密输出
func (ee *EncryptedEvaluator) Evaluate(nn *network.NeuralNetwork, input float64) ([]float64, error) {
	af := nn.AffineForm()

	ct, err := ee.EncryptInput(input, len(af.Slope))
	if err != nil {
		return nil, err
	}
	result, err := ee.EvaluateAffine(ct, af)
	if err != nil {
		return nil, err
	}
	return ee.DecryptOutput(result, len(af.Slope))
}

// TotalError 与 NeuralNetwork.GetTotalError 相同的百分比误差，作用于解密后的输出
func TotalError(outputs []float64, trueOutput float64) float64 {
	squared := make([]float64, len(outputs))
	for i, o := range outputs {
		e := 2 * (trueOutput - o)
		squared[i] = e * e
	}
	return stat.Mean(squared, nil) * 100
}

func toComplex(values []float64) []complex128 {
	out := make([]complex128, len(values))
	for i, v := range values {
		out[i] = complex(v, 0)
	}
	return out
}
