package main

import (
	"DoublerNet/pkg/config"
	"DoublerNet/pkg/network"
	"DoublerNet/pkg/privacy"
	"DoublerNet/pkg/training"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
)

func main() {
	configPath := flag.String("config", "", "YAML配置文件路径，为空时使用默认配置")
	seed := flag.Uint64("seed", 0, "随机种子，0表示使用配置或当前时间")
	debug := flag.Bool("debug", false, "训练后打印所有权重")
	encrypted := flag.Bool("encrypted", false, "同时在CKKS密文上评估")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	s := cfg.SeedOrNow()

	// 创建神经网络
	nn, err := network.NewNeuralNetwork(cfg.Network)
	if err != nil {
		log.Fatalf("创建神经网络失败: %v", err)
	}
	rng := rand.New(rand.NewPCG(s, s))
	nn.Initialize(rng)

	if err := training.TrainModel(nn, rng, cfg.Batches, nil); err != nil {
		log.Fatalf("训练失败: %v", err)
	}

	if *debug || cfg.Debug {
		fmt.Print(nn)
	}

	totalError := training.Evaluate(nn, cfg.EvalInput)
	fmt.Printf("Total error after training: %f%%\n", totalError)

	if *encrypted {
		ee, err := privacy.NewEncryptedEvaluator(privacy.DefaultParametersLiteral())
		if err != nil {
			log.Fatalf("创建加密评估器失败: %v", err)
		}
		outputs, err := ee.Evaluate(nn, float64(cfg.EvalInput))
		if err != nil {
			log.Fatalf("密文评估失败: %v", err)
		}
		encError := privacy.TotalError(outputs, float64(training.Target(cfg.EvalInput)))
		fmt.Printf("Total error after training (encrypted): %f%%\n", encError)
	}
}
