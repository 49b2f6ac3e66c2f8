package main

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/compliance_backend/config"
	"github.com/mmdatafocus/compliance_backend/models"
	"github.com/mmdatafocus/compliance_backend/utils"
	"github.com/sirupsen/logrus"
)

func (a *api) opsRoutes(r gin.IRouter) {
	r.GET("/outbox/status", a.outboxStatus)
	r.POST("/outbox/replay", a.replayOutbox)
	r.GET("/submissions/:id/notifications", a.submissionNotifications)
}

func (a *api) outboxStatus(c *gin.Context) {
	counts, err := models.CountNotificationsByStatus(c.Request.Context(), a.db)
	if err != nil {
		writeError(c, "outboxStatus", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": counts})
}

// replayOutbox moves DEAD notifications of the caller's company back to PENDING.
// ?submission_id narrows the replay to one submission.
func (a *api) replayOutbox(c *gin.Context) {
	submissionId := 0
	if v := c.Query("submission_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "BadRequest", "message": "invalid submission_id"})
			return
		}
		submissionId = id
	}
	ctx := c.Request.Context()
	n, err := models.ReplayDeadNotifications(ctx, a.db, submissionId)
	if err != nil {
		writeError(c, "replayOutbox", err)
		return
	}
	companyId, _ := utils.GetCompanyIdFromContext(ctx)
	userId, _ := utils.GetUserIdFromContext(ctx)
	config.GetLogger().WithFields(logrus.Fields{
		"company_id":    companyId,
		"user_id":       userId,
		"submission_id": submissionId,
		"replayed":      n,
	}).Info("[outbox.replay]")
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"replayed": n}})
}

func (a *api) submissionNotifications(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	rows, err := models.ListSubmissionNotifications(c.Request.Context(), a.db, id)
	if err != nil {
		writeError(c, "submissionNotifications", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}
