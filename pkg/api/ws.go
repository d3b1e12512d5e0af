package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/session"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/stream"
)

// Stream types selectable on /ws
const (
	StreamEKSCLI   = "eks-cli-stream"
	StreamKubeLogs = "kube-logs"
)

// The dashboard binds to loopback for a single operator; cross-origin
// checks add nothing here
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (s *Server) handleWebSocket(c *gin.Context) {
	streamType := c.DefaultQuery("type", StreamEKSCLI)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	switch streamType {
	case StreamEKSCLI:
		session.New(conn, s.app.Orch).Run(c.Request.Context())

	case StreamKubeLogs:
		session.RunTail(c.Request.Context(), conn, s.app.Runner, session.TailRequest{
			Namespace: c.Query("namespace"),
			Pod:       c.Query("pod"),
			Container: c.Query("container"),
		})

	default:
		_ = conn.WriteJSON(stream.Frame{
			Type:    stream.FrameError,
			Message: fmt.Sprintf("unknown stream type %q", streamType),
		})
		conn.Close()
	}
}
