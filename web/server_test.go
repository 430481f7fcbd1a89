package web

import (
	"FloorPlanServer/floorplan"
	iface "FloorPlanServer/interface"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockAnalyzer struct{}

func (m *MockAnalyzer) Analyze(ctx context.Context, raw []byte) (*floorplan.Result, error) {
	switch string(raw) {
	case "bad":
		return nil, fmt.Errorf("%w: cannot decode", floorplan.ErrIngestion)
	case "crash":
		return nil, fmt.Errorf("%w: backend gone", floorplan.ErrDetection)
	case "empty":
		return floorplan.Build(iface.Detections{}, 320, 240, floorplan.IdentityScale), nil
	}
	dets := iface.Detections{Items: []iface.RawDetection{
		{Box: [4]float64{0, 0, 10, 4}, ClassID: 3, Score: 0.9},
		{Box: [4]float64{0, 0, 3, 20}, ClassID: 3, Score: 0.8},
		{Box: [4]float64{1, 2, 8, 9}, ClassID: 7, Score: 0.8},
	}}
	return floorplan.Build(dets, 640, 480, floorplan.IdentityScale), nil
}

type MockEngine struct{}

func (MockEngine) State() int  { return 3 }
func (MockEngine) Ready() bool { return true }
func (MockEngine) CheckConfig() iface.EngineConfig {
	return iface.EngineConfig{Backend: "mock", Conf: 0.7}
}

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	srv := httptest.NewServer(New(&MockAnalyzer{}, MockEngine{}, opts).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func upload(t *testing.T, url, field string, content []byte) *http.Response {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile(field, "plan.png")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req, err := http.NewRequest(http.MethodPost, url+"/", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Origin", "http://example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.NewDecoder(r).Decode(&m))
	return m
}

func TestPredict(t *testing.T) {
	srv := newTestServer(t, Options{})

	t.Run("Test result document", func(t *testing.T) {
		resp := upload(t, srv.URL, "image", []byte("png"))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

		m := decode(t, resp.Body)
		assert.Len(t, m["points"], 3)
		assert.Len(t, m["classes"], 3)
		assert.Equal(t, map[string]any{}, m["classes"].([]any)[2])
		assert.Equal(t, float64(640), m["Width"])
		assert.Equal(t, float64(480), m["Height"])
		assert.Equal(t, 15.0, m["averageDoor"])
	})

	t.Run("Test empty detections", func(t *testing.T) {
		resp := upload(t, srv.URL, "image", []byte("empty"))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"points":[],"classes":[],"Width":320,"Height":240,"averageDoor":0}`, string(b))
	})

	t.Run("Test missing field", func(t *testing.T) {
		resp := upload(t, srv.URL, "file", []byte("png"))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Test invalid image", func(t *testing.T) {
		resp := upload(t, srv.URL, "image", []byte("bad"))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, decode(t, resp.Body)["error"], "invalid image")
	})

	t.Run("Test detector failure", func(t *testing.T) {
		resp := upload(t, srv.URL, "image", []byte("crash"))
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})

	t.Run("Test oversized upload", func(t *testing.T) {
		assert.Equal(t, 16*1024*1024, MaxUploadSize)
		small := newTestServer(t, Options{MaxUploadSize: 1024})
		resp := upload(t, small.URL, "image", bytes.Repeat([]byte{'a'}, 2048))
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})

	t.Run("Test preflight", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodOptions, srv.URL+"/", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "http://example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	})
}

func TestStatusRoutes(t *testing.T) {
	srv := newTestServer(t, Options{})

	resp, err := http.Get(srv.URL + "/api/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "pong", decode(t, resp.Body)["message"])

	resp, err = http.Get(srv.URL + "/api/engine")
	require.NoError(t, err)
	defer resp.Body.Close()
	data := decode(t, resp.Body)["data"].(map[string]any)
	assert.Equal(t, true, data["ready"])
	assert.Equal(t, "mock", data["config"].(map[string]any)["backend"])
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, Options{RateLimit: 0.001, RateBurst: 1})

	first := upload(t, srv.URL, "image", []byte("png"))
	assert.Equal(t, http.StatusOK, first.StatusCode)
	second := upload(t, srv.URL, "image", []byte("png"))
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
}

func TestStream(t *testing.T) {
	srv := newTestServer(t, Options{})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	t.Run("binary image", func(t *testing.T) {
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("png")))
		var m map[string]any
		require.NoError(t, conn.ReadJSON(&m))
		assert.Equal(t, 15.0, m["averageDoor"])
	})

	t.Run("base64 data url", func(t *testing.T) {
		msg := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("empty"))
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
		var m map[string]any
		require.NoError(t, conn.ReadJSON(&m))
		assert.Equal(t, float64(320), m["Width"])
	})

	t.Run("errors keep the stream open", func(t *testing.T) {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("%%%")))
		var m map[string]any
		require.NoError(t, conn.ReadJSON(&m))
		assert.Contains(t, m["error"], "base64")

		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("bad")))
		m = nil
		require.NoError(t, conn.ReadJSON(&m))
		assert.Contains(t, m["error"], "invalid image")
	})
}
