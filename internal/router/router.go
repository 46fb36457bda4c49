package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/peerloom/liveclass-service/internal/handler"
	"github.com/peerloom/liveclass-service/pkg/constants"
)

// New builds the HTTP router.
func New(
	sessionHandler *handler.SessionHandler,
	controlWS *handler.ControlWSHandler,
	health *handler.HealthHandler,
) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET(constants.PathHealth, health.Health)
	r.GET(constants.PathReady, health.Ready)

	// REST sessions and admission
	sessions := r.Group("/sessions")
	{
		sessions.POST("", sessionHandler.StartSession)
		sessions.GET("/:group_id", sessionHandler.SessionStatus)
		sessions.DELETE("/:group_id", sessionHandler.EndSession)

		sessions.POST("/:group_id/requests", sessionHandler.SubmitRequest)
		sessions.GET("/:group_id/requests", sessionHandler.PendingRequests)
		sessions.POST("/:group_id/requests/approve-all", sessionHandler.ApproveAll)
		sessions.POST("/:group_id/requests/reset", sessionHandler.ResetRequests)
		sessions.POST("/:group_id/requests/:id/approve", sessionHandler.ApproveRequest)
		sessions.POST("/:group_id/requests/:id/reject", sessionHandler.RejectRequest)

		sessions.DELETE("/:group_id/participants/:user_id", sessionHandler.RemoveParticipant)
		sessions.GET("/:group_id/attendance", sessionHandler.Attendance)
	}

	// WebSocket: /ws/control/:group_id/:user_id
	r.GET("/ws/control/:group_id/:user_id", controlWS.ServeWS)

	return r
}
