package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/compliance_backend/models"
)

func (a *api) publishTemplate(c *gin.Context) {
	var req models.NewTemplateVersion
	if !bindJSON(c, &req) {
		return
	}
	v, err := a.templates.Publish(c.Request.Context(), &req)
	if err != nil {
		writeError(c, "publishTemplate", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": v})
}

func (a *api) latestTemplate(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	v, err := a.templates.Latest(c.Request.Context(), id)
	if err != nil {
		writeError(c, "latestTemplate", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": v})
}

// templateVersion serves an exact version. Old versions stay readable forever since
// submissions are pinned to them.
func (a *api) templateVersion(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	version, ok := pathId(c, "version")
	if !ok {
		return
	}
	v, err := a.templates.Resolve(c.Request.Context(), id, version)
	if err != nil {
		writeError(c, "templateVersion", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": v})
}
