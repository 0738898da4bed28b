package parameters

import (
	"DoublerNet/pkg/core/monitor/utils"
	"DoublerNet/pkg/privacy"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// Manager 参数管理器，按需生成CKKS参数和密钥
type Manager struct {
	paramsLiteral      ckks.ParametersLiteral
	paramsLiteralBytes string // base64编码的参数字面量

	once      sync.Once
	evaluator *privacy.EncryptedEvaluator
	initErr   error
}

// NewManager 创建新的参数管理器，密钥在第一次加密评估时生成
func NewManager(literal ckks.ParametersLiteral) (*Manager, error) {
	jsonBytes, err := json.Marshal(literal)
	if err != nil {
		return nil, fmt.Errorf("序列化参数字面量失败: %v", err)
	}
	return &Manager{
		paramsLiteral:      literal,
		paramsLiteralBytes: utils.EncodeToBase64(jsonBytes),
	}, nil
}

// GetEvaluator 获取加密评估器，第一次调用时生成密钥
func (pm *Manager) GetEvaluator() (*privacy.EncryptedEvaluator, error) {
	pm.once.Do(func() {
		fmt.Printf("输入参数: LogN=%d, LogQ=%v, LogP=%v\n",
			pm.paramsLiteral.LogN, pm.paramsLiteral.LogQ, pm.paramsLiteral.LogP)

		pm.evaluator, pm.initErr = privacy.NewEncryptedEvaluator(pm.paramsLiteral)
		if pm.initErr != nil {
			fmt.Printf("[ERROR] 参数创建失败: %v\n", pm.initErr)
			return
		}
		params := pm.evaluator.Params
		fmt.Printf("[SUCCESS] 参数创建成功:\n")
		fmt.Printf("  实际LogN: %d\n", params.LogN())
		fmt.Printf("  Q模数数量: %d, 总位数: %.1f\n", params.QCount(), params.LogQ())
		fmt.Printf("  P模数数量: %d, 总位数: %.1f\n", params.PCount(), params.LogP())
		fmt.Printf("  默认精度: %d\n", params.LogDefaultScale())
	})
	return pm.evaluator, pm.initErr
}

// GetParams 获取参数摘要
func (pm *Manager) GetParams() (utils.CKKSParamsInfo, error) {
	ee, err := pm.GetEvaluator()
	if err != nil {
		return utils.CKKSParamsInfo{}, err
	}
	return utils.CKKSParamsInfo{
		LogN:            ee.Params.LogN(),
		LogQ:            pm.paramsLiteral.LogQ,
		LogP:            pm.paramsLiteral.LogP,
		LogDefaultScale: ee.Params.LogDefaultScale(),
		MaxLevel:        ee.Params.MaxLevel(),
		Slots:           ee.Slots(),
		Literal:         pm.paramsLiteralBytes,
	}, nil
}
