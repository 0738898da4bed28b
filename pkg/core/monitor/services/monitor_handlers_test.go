package services

import (
	"DoublerNet/pkg/config"
	"DoublerNet/pkg/core/monitor/utils"
	"DoublerNet/pkg/network"
	"DoublerNet/pkg/training"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestMonitor(t *testing.T) *Monitor {
	t.Helper()
	cfg := config.Default()
	cfg.Batches = 20
	cfg.Seed = 11
	cfg.Server.MaxRuns = 2
	m, err := NewMonitor(cfg)
	require.NoError(t, err)
	t.Cleanup(m.RunManager.CancelAll)
	return m
}

func doRequest(t *testing.T, m *Monitor, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	m.HTTPServer.GetRouter().ServeHTTP(w, req)
	return w
}

func startRun(t *testing.T, m *Monitor, req interface{}) utils.RunInfo {
	t.Helper()
	w := doRequest(t, m, http.MethodPost, "/runs", req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var info utils.RunInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	return info
}

func waitFinished(t *testing.T, m *Monitor, id string) utils.RunInfo {
	t.Helper()
	require.Eventually(t, func() bool {
		info, ok := m.RunManager.GetRun(id)
		return ok && info.Status != utils.StatusRunning
	}, 10*time.Second, 10*time.Millisecond)
	info, _ := m.RunManager.GetRun(id)
	return info
}

func TestStartRunWithDefaults(t *testing.T) {
	m := newTestMonitor(t)
	info := startRun(t, m, nil)

	assert.NotEmpty(t, info.ID)
	assert.Equal(t, 20, info.Batches)
	assert.Equal(t, uint64(11), info.Seed)
	assert.Equal(t, network.DefaultHyperparameters(), info.Hyperparameters)

	final := waitFinished(t, m, info.ID)
	assert.Equal(t, utils.StatusFinished, final.Status)
	assert.Equal(t, 20, final.ReportCount)
	require.NotNil(t, final.Latest)
	assert.Equal(t, 20, final.Latest.Batch)
}

func TestStartRunOverrides(t *testing.T) {
	m := newTestMonitor(t)
	hp := network.Hyperparameters{
		HiddenLayersCount:  0,
		NodesInEachLayer:   3,
		TrainingIterations: 5,
		LearningRate:       0.001,
	}
	info := startRun(t, m, utils.RunRequest{Network: &hp, Batches: 4, Seed: 99})

	assert.Equal(t, hp, info.Hyperparameters)
	assert.Equal(t, 4, info.Batches)
	assert.Equal(t, uint64(99), info.Seed)
	assert.Equal(t, utils.StatusFinished, waitFinished(t, m, info.ID).Status)
}

func TestStartRunRejectsBadNetwork(t *testing.T) {
	m := newTestMonitor(t)
	hp := network.DefaultHyperparameters()
	hp.NodesInEachLayer = network.MaxLayerNodeCount + 1

	w := doRequest(t, m, http.MethodPost, "/runs", utils.RunRequest{Network: &hp})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "capacity")

	w = doRequest(t, m, http.MethodPost, "/runs", map[string]int{"batches": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	negativeRate := network.DefaultHyperparameters()
	negativeRate.LearningRate = -1
	w = doRequest(t, m, http.MethodPost, "/runs", utils.RunRequest{Network: &negativeRate})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid hyperparameters")
	assert.Empty(t, m.RunManager.GetRuns())
}

func TestDivergingRunFailsAndStaysReadable(t *testing.T) {
	m := newTestMonitor(t)
	healthy := startRun(t, m, utils.RunRequest{Batches: 2})
	waitFinished(t, m, healthy.ID)

	hp := network.DefaultHyperparameters()
	hp.LearningRate = 0.5
	diverging := startRun(t, m, utils.RunRequest{Network: &hp, Batches: 200})
	final := waitFinished(t, m, diverging.ID)
	assert.Equal(t, utils.StatusFailed, final.Status)
	assert.Contains(t, final.Error, "diverged")
	assert.Less(t, final.ReportCount, 200)

	w := doRequest(t, m, http.MethodGet, "/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Runs []utils.RunInfo `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Runs, 2)

	w = doRequest(t, m, http.MethodGet, "/runs/"+diverging.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var info utils.RunInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, utils.StatusFailed, info.Status)

	w = doRequest(t, m, http.MethodGet, "/runs/"+diverging.ID+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		Reports []training.BatchReport `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	for _, r := range history.Reports {
		assert.True(t, training.Finite(r.TrainingError))
		assert.True(t, training.Finite(r.HeldOutError))
	}

	// 最后一个快照可能已接近溢出，评估要么成功要么返回422，响应体都是合法JSON
	w = doRequest(t, m, http.MethodGet, "/runs/"+diverging.ID+"/evaluate?input=9", nil)
	assert.Contains(t, []int{http.StatusOK, http.StatusUnprocessableEntity}, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
}

func TestRunLimit(t *testing.T) {
	m := newTestMonitor(t)
	long := utils.RunRequest{Batches: 1000000}
	first := startRun(t, m, long)
	second := startRun(t, m, long)

	w := doRequest(t, m, http.MethodPost, "/runs", long)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	for _, id := range []string{first.ID, second.ID} {
		w = doRequest(t, m, http.MethodPost, "/runs/"+id+"/cancel", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, utils.StatusCancelled, waitFinished(t, m, id).Status)
	}

	w = doRequest(t, m, http.MethodPost, "/runs/"+first.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetRunsAndHistory(t *testing.T) {
	m := newTestMonitor(t)
	info := startRun(t, m, utils.RunRequest{Batches: 3})
	waitFinished(t, m, info.ID)

	w := doRequest(t, m, http.MethodGet, "/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Runs []utils.RunInfo `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, info.ID, list.Runs[0].ID)

	w = doRequest(t, m, http.MethodGet, "/runs/"+info.ID+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		Reports []training.BatchReport `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history.Reports, 3)
	assert.Equal(t, 1, history.Reports[0].Batch)

	w = doRequest(t, m, http.MethodGet, "/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWeightsSnapshotRoundTrip(t *testing.T) {
	m := newTestMonitor(t)
	info := startRun(t, m, utils.RunRequest{Batches: 2})
	waitFinished(t, m, info.ID)

	w := doRequest(t, m, http.MethodGet, "/runs/"+info.ID+"/weights", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp utils.WeightsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Layers, 3)

	data, err := utils.DecodeFromBase64(resp.Snapshot)
	require.NoError(t, err)
	snap, err := utils.DecodeSnapshot(data)
	require.NoError(t, err)

	expected, err := m.RunManager.GetSnapshot(info.ID)
	require.NoError(t, err)
	assert.Equal(t, expected.Weights(), snap.Weights)
	assert.Equal(t, resp.Layers[1].Nodes[2].Edges[4], expected.Weight(1, 2, 4))
}

func TestEvaluate(t *testing.T) {
	m := newTestMonitor(t)
	info := startRun(t, m, utils.RunRequest{Batches: 5})
	waitFinished(t, m, info.ID)

	w := doRequest(t, m, http.MethodGet, "/runs/"+info.ID+"/evaluate?input=4", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp utils.EvaluateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Input)
	assert.Equal(t, 8, resp.Target)
	assert.Len(t, resp.Outputs, 10)
	assert.False(t, resp.Encrypted)

	snapshot, err := m.RunManager.GetSnapshot(info.ID)
	require.NoError(t, err)
	assert.InDelta(t, training.Evaluate(snapshot, 4), resp.TotalError, 1e-9)

	// 缺省使用配置的评估输入
	w = doRequest(t, m, http.MethodGet, "/runs/"+info.ID+"/evaluate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, training.HeldOutInput, resp.Input)

	for _, bad := range []string{"abc", "-1", "1001", "4611686018427387904"} {
		w = doRequest(t, m, http.MethodGet, "/runs/"+info.ID+"/evaluate?input="+bad, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}

	w = doRequest(t, m, http.MethodGet, "/runs/"+info.ID+"/evaluate?input=1000", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2000, resp.Target)
}

func TestEvaluateEncryptedMatchesPlaintext(t *testing.T) {
	m := newTestMonitor(t)
	info := startRun(t, m, utils.RunRequest{Batches: 5})
	waitFinished(t, m, info.ID)

	w := doRequest(t, m, http.MethodGet, "/runs/"+info.ID+"/evaluate?input=3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var plain utils.EvaluateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &plain))

	w = doRequest(t, m, http.MethodGet, "/runs/"+info.ID+"/evaluate/encrypted?input=3", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var enc utils.EvaluateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &enc))

	assert.True(t, enc.Encrypted)
	assert.InDeltaSlice(t, plain.Outputs, enc.Outputs, 1e-4)

	w = doRequest(t, m, http.MethodGet, "/params/ckks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var params utils.CKKSParamsInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &params))
	assert.Equal(t, 12, params.LogN)
	assert.Equal(t, 1, params.MaxLevel)
	assert.NotEmpty(t, params.Literal)
}

func TestStreamReplaysFinishedRun(t *testing.T) {
	m := newTestMonitor(t)
	info := startRun(t, m, utils.RunRequest{Batches: 4})
	waitFinished(t, m, info.ID)

	srv := httptest.NewServer(m.HTTPServer.GetRouter())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/runs/" + info.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var batches []int
	for {
		var report training.BatchReport
		if err := conn.ReadJSON(&report); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())
			break
		}
		batches = append(batches, report.Batch)
	}
	assert.Equal(t, []int{1, 2, 3, 4}, batches)
}

func TestStreamUnknownRun(t *testing.T) {
	m := newTestMonitor(t)
	w := doRequest(t, m, http.MethodGet, "/runs/missing/ws", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatus(t *testing.T) {
	m := newTestMonitor(t)
	w := doRequest(t, m, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Contains(t, status, "runs")
	assert.Contains(t, status, "defaults")
	assert.Equal(t, "8080", status["port"])
}
