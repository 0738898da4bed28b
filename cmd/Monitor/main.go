package main

import (
	"DoublerNet/pkg/config"
	"DoublerNet/pkg/core/monitor/services"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	configPath := flag.String("config", "", "YAML配置文件路径，为空时使用默认配置")
	port := flag.String("port", "", "监听端口，覆盖配置文件")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	monitor, err := services.NewMonitor(cfg)
	if err != nil {
		log.Fatalf("创建监控服务失败: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- monitor.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("HTTP服务器异常退出: %v", err)
		}
	case sig := <-sigCh:
		fmt.Printf("\n收到信号 %v，正在关闭...\n", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := monitor.Stop(ctx); err != nil {
			log.Printf("关闭HTTP服务器失败: %v", err)
		}
	}
	fmt.Println("监控服务已停止")
}
