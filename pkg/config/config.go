// 配置加载
// 默认值即命令行训练使用的超参数，可以用YAML文件覆盖
package config

import (
	"DoublerNet/pkg/network"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ServerConfig 监控服务配置
type ServerConfig struct {
	Port string `yaml:"port" validate:"required,numeric"`
	// 已结束的训练在注册表中保留的时间
	RunTTL time.Duration `yaml:"run_ttl"`
	// 同时运行的训练数上限
	MaxRuns int `yaml:"max_runs" validate:"gte=1"`
}

// Config 训练和服务配置
type Config struct {
	Network   network.Hyperparameters `yaml:"network"`
	Batches   int                     `yaml:"batches" validate:"gte=1"`
	Seed      uint64                  `yaml:"seed"`
	EvalInput int                     `yaml:"eval_input" validate:"gte=0,lte=1000"`
	Debug     bool                    `yaml:"debug"`
	Server    ServerConfig            `yaml:"server"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Network:   network.DefaultHyperparameters(),
		Batches:   500,
		Seed:      0,
		EvalInput: 3,
		Debug:     false,
		Server: ServerConfig{
			Port:    "8080",
			RunTTL:  10 * time.Minute,
			MaxRuns: 4,
		},
	}
}

var validate = validator.New()

// Validate 校验配置字段，并检查网络容量
func (c *Config) Validate() error {
	if err := c.Network.Validate(); err != nil {
		return fmt.Errorf("网络超参数不合法: %w", err)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("配置校验失败: %v", err)
	}
	return nil
}

// Parse 解析YAML，未出现的字段保留默认值
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load 从文件加载配置；path为空时返回默认配置
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %v", err)
	}
	return Parse(data)
}

// SeedOrNow 种子为0时使用当前时间
func (c *Config) SeedOrNow() uint64 {
	if c.Seed != 0 {
		return c.Seed
	}
	return uint64(time.Now().UnixNano())
}
