package web

import (
	"FloorPlanServer/ingest"
	"FloorPlanServer/logger"
	"FloorPlanServer/monitor"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type streamError struct {
	Error string `json:"error"`
}

// handleStream analyzes one image per message: binary messages carry the
// encoded image, text messages carry it base64 encoded.
func (s *Server) handleStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already written the response
		return
	}
	defer conn.Close()
	conn.SetReadLimit(s.opts.MaxUploadSize)

	log := logger.Log().With(zap.String("requestID", c.GetString("requestID")))
	log.Info("stream opened")
	ctx := c.Request.Context()
	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("stream closed", zap.Error(err))
			}
			return
		}
		var raw []byte
		switch mt {
		case websocket.BinaryMessage:
			raw = msg
		case websocket.TextMessage:
			raw, err = ingest.DecodeBase64(string(msg))
			if err != nil {
				s.streamFail(conn, http.StatusBadRequest, errors.New("invalid base64 image"))
				continue
			}
		default:
			continue
		}

		result, err := s.analyzer.Analyze(ctx, raw)
		if err != nil {
			s.streamFail(conn, statusFor(err), err)
			continue
		}
		monitor.ObserveRequest("ws", strconv.Itoa(http.StatusOK))
		if err := conn.WriteJSON(result); err != nil {
			log.Warn("stream write failed", zap.Error(err))
			return
		}
	}
}

func (s *Server) streamFail(conn *websocket.Conn, code int, err error) {
	monitor.ObserveRequest("ws", strconv.Itoa(code))
	_ = conn.WriteJSON(streamError{Error: err.Error()})
}
