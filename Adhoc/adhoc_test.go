package Adhoc

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendAliveMessage(t *testing.T) {
	received := make(chan RegisterRequest, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/register", r.URL.Path)
		var req RegisterRequest
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			received <- req
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(RegisterResponse{Id: req.Id, Success: true})
	}))
	defer srv.Close()

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go SendAliveMessage(ctx, RegServerConfig{Addr: host, Port: port, Interval: 20 * time.Millisecond}, "10.0.0.7", 50051, CpuInstance, &wg)

	var first, second RegisterRequest
	select {
	case first = <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("no registration received")
	}
	select {
	case second = <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat received")
	}
	cancel()
	wg.Wait()

	assert.Equal(t, "10.0.0.7", first.IP)
	assert.Equal(t, 50051, first.Port)
	assert.Equal(t, CpuInstance, first.InstanceClass)
	assert.NotEmpty(t, first.Id)
	assert.Equal(t, first.Id, second.Id)
}
