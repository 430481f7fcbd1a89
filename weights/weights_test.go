package weights

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var payload = []byte("mask rcnn weights for floor plans")

func serve(t *testing.T, hits *atomic.Int32) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEnsure(t *testing.T) {
	sum := sha256.Sum256(payload)

	t.Run("download then reuse", func(t *testing.T) {
		var hits atomic.Int32
		srv := serve(t, &hits)
		cfg := Config{Dir: t.TempDir(), FileName: "w.h5", URL: srv.URL, MinSize: 10, SHA256: hex.EncodeToString(sum[:])}

		path, err := Ensure(context.Background(), cfg)
		require.NoError(t, err)
		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, payload, got)

		_, err = Ensure(context.Background(), cfg)
		require.NoError(t, err)
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("too small", func(t *testing.T) {
		var hits atomic.Int32
		srv := serve(t, &hits)
		cfg := Config{Dir: t.TempDir(), FileName: "w.h5", URL: srv.URL}
		_, err := Ensure(context.Background(), cfg)
		assert.ErrorContains(t, err, "too small")
		_, statErr := os.Stat(filepath.Join(cfg.Dir, "w.h5"))
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("checksum mismatch", func(t *testing.T) {
		var hits atomic.Int32
		srv := serve(t, &hits)
		cfg := Config{Dir: t.TempDir(), FileName: "w.h5", URL: srv.URL, MinSize: 1, SHA256: "00"}
		_, err := Ensure(context.Background(), cfg)
		assert.ErrorContains(t, err, "checksum")
	})

	t.Run("missing without url", func(t *testing.T) {
		_, err := Ensure(context.Background(), Config{Dir: t.TempDir(), FileName: "w.h5"})
		assert.Error(t, err)
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()
		_, err := Ensure(context.Background(), Config{Dir: t.TempDir(), FileName: "w.h5", URL: srv.URL, MinSize: 1})
		assert.ErrorContains(t, err, "404")
	})
}
