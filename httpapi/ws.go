package httpapi

import (
	"fmt"
	"net/http"

	"WasteDetServer/imagesource"
	"WasteDetServer/logger"
	"WasteDetServer/monitor"
	"WasteDetServer/report"

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

// handleWS classifies one base64 image per text message and answers each with
// an image report. The threshold is fixed per connection.
func (s *Server) handleWS(c *gin.Context) {
	threshold, err := s.threshold(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, report.Failure(err))
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)
	session := c.GetString("request_id")
	logger.Log().Info("websocket session opened", zap.String("session", session))

	for seq := 1; ; seq++ {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Log().Info("websocket session closed", zap.String("session", session), zap.Error(err))
			return
		}
		monitor.RequestsTotal.WithLabelValues("websocket").Inc()
		if mt != websocket.TextMessage {
			_ = conn.WriteJSON(report.Envelope{Error: "unsupported message type"})
			continue
		}
		raw, err := imagesource.DecodeBase64(string(msg))
		if err != nil {
			_ = conn.WriteJSON(report.Failure(err))
			continue
		}
		loader := imagesource.NewMemoryLoader()
		id := loader.Add(fmt.Sprintf("%s-%d", session, seq), raw)
		res, err := s.classifyOne(c, loader, id, threshold)
		if err != nil {
			_ = conn.WriteJSON(report.Failure(err))
			return
		}
		if err := conn.WriteJSON(report.FromImage(res)); err != nil {
			logger.Log().Warn("websocket write failed", zap.String("session", session), zap.Error(err))
			return
		}
	}
}
