package server

import (
	"DoublerNet/pkg/core/monitor/utils"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPServer HTTP服务器
type HTTPServer struct {
	// Gin框架的路由引擎，可通过Router.POST()等方法注册API路由和处理函数
	Router *gin.Engine
	// 监听端口
	Port string
	// 本机IP地址
	LocalIP string

	srv *http.Server
}

// NewHTTPServer 创建新的HTTP服务器
func NewHTTPServer(port string) *HTTPServer {
	localIP, err := utils.GetLocalIP()
	if err != nil {
		fmt.Printf("警告: 获取本机IP失败: %v\n", err)
		localIP = "未知"
	}

	router := gin.Default()
	return &HTTPServer{
		Router:  router,
		Port:    port,
		LocalIP: localIP,
		srv: &http.Server{
			Addr:              ":" + port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start 启动HTTP服务器，阻塞直到服务器停止
func (hs *HTTPServer) Start() error {
	fmt.Printf("训练监控服务启动中...\n")
	fmt.Printf("本机IP: %s\n", hs.LocalIP)
	fmt.Printf("监听地址: 0.0.0.0:%s\n", hs.Port)
	fmt.Printf("状态页面: http://%s:%s/status\n", hs.LocalIP, hs.Port)
	fmt.Printf("训练列表: http://%s:%s/runs\n\n", hs.LocalIP, hs.Port)

	if err := hs.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 优雅关闭HTTP服务器
func (hs *HTTPServer) Stop(ctx context.Context) error {
	return hs.srv.Shutdown(ctx)
}

// GetRouter 获取路由器
func (hs *HTTPServer) GetRouter() *gin.Engine {
	return hs.Router
}

// GetLocalIP 获取本机IP地址
func (hs *HTTPServer) GetLocalIP() string {
	return hs.LocalIP
}
