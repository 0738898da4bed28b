package services

import (
	"DoublerNet/pkg/core/monitor/runs"
	"DoublerNet/pkg/core/monitor/utils"
	"DoublerNet/pkg/training"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// writeWait 单次websocket写入的超时
const writeWait = 5 * time.Second

// ==================== HTTP处理器方法 ====================

// statusFor 把训练管理器的错误映射为HTTP状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, runs.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, runs.ErrTooManyRuns):
		return http.StatusTooManyRequests
	case errors.Is(err, runs.ErrRunNotRunning):
		return http.StatusConflict
	case errors.Is(err, training.ErrDiverged):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// startRunHandler 启动训练处理器
func (m *Monitor) startRunHandler(ctx *gin.Context) {
	var req utils.RunRequest
	// 空请求体使用配置中的默认值
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
	}
	if req.Network != nil {
		if err := req.Network.Validate(); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	id, err := m.StartRun(req)
	if err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	info, _ := m.RunManager.GetRun(id)
	ctx.JSON(http.StatusAccepted, info)
}

// getRunsHandler 获取所有训练处理器
func (m *Monitor) getRunsHandler(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"runs": m.RunManager.GetRuns()})
}

// getRunHandler 获取单个训练处理器
func (m *Monitor) getRunHandler(ctx *gin.Context) {
	info, ok := m.RunManager.GetRun(ctx.Param("id"))
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	ctx.JSON(http.StatusOK, info)
}

// getHistoryHandler 获取训练全部批次报告处理器
func (m *Monitor) getHistoryHandler(ctx *gin.Context) {
	id := ctx.Param("id")
	history, ok := m.RunManager.GetHistory(id)
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"run_id": id, "reports": history})
}

// getWeightsHandler 获取训练最新权重处理器
func (m *Monitor) getWeightsHandler(ctx *gin.Context) {
	resp, err := m.WeightsOf(ctx.Param("id"))
	if err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// parseInput 解析查询参数 input，缺省为配置的评估输入，取值范围 [0, MaxEvalInput]
func (m *Monitor) parseInput(ctx *gin.Context) (int, bool) {
	raw := ctx.Query("input")
	if raw == "" {
		return m.config.EvalInput, true
	}
	input, err := strconv.Atoi(raw)
	if err != nil || input < 0 || input > training.MaxEvalInput {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("invalid input, expected an integer in [0, %d]", training.MaxEvalInput),
		})
		return 0, false
	}
	return input, true
}

// evaluateHandler 明文评估处理器
func (m *Monitor) evaluateHandler(ctx *gin.Context) {
	input, ok := m.parseInput(ctx)
	if !ok {
		return
	}
	resp, err := m.EvaluateRun(ctx.Param("id"), input)
	if err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// evaluateEncryptedHandler 密文评估处理器
func (m *Monitor) evaluateEncryptedHandler(ctx *gin.Context) {
	input, ok := m.parseInput(ctx)
	if !ok {
		return
	}
	resp, err := m.EvaluateRunEncrypted(ctx.Param("id"), input)
	if err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// cancelRunHandler 取消训练处理器
func (m *Monitor) cancelRunHandler(ctx *gin.Context) {
	id := ctx.Param("id")
	if err := m.RunManager.Cancel(id); err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "cancelling", "run_id": id})
}

// streamHandler 通过websocket推送批次报告
// 先重放已有报告，再推送新报告，训练结束后发送关闭帧
func (m *Monitor) streamHandler(ctx *gin.Context) {
	history, reports, unsubscribe, err := m.RunManager.Subscribe(ctx.Param("id"))
	if err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	defer unsubscribe()

	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		fmt.Printf("websocket升级失败: %v\n", err)
		return
	}
	defer conn.Close()

	// 读取协程只用于感知客户端断开
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for _, report := range history {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(report); err != nil {
			return
		}
	}

	for {
		select {
		case report, ok := <-reports:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run ended"))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(report); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

// getCKKSParamsHandler 获取CKKS参数处理器
func (m *Monitor) getCKKSParamsHandler(ctx *gin.Context) {
	info, err := m.ParameterManager.GetParams()
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, info)
}

// getStatusHandler 获取服务状态处理器
func (m *Monitor) getStatusHandler(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"local_ip": m.GetLocalIP(),
		"port":     m.HTTPServer.Port,
		"defaults": gin.H{
			"network":    m.config.Network,
			"batches":    m.config.Batches,
			"eval_input": m.config.EvalInput,
		},
		"runs":      m.RunManager.GetStatus(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
