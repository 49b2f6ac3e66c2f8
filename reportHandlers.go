package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/compliance_backend/models"
	"github.com/mmdatafocus/compliance_backend/models/reports"
)

// auditExport streams the audit workbook for the caller's company.
func (a *api) auditExport(c *gin.Context) {
	filter := models.SubmissionFilter{}
	if v, err := strconv.Atoi(c.Query("template_id")); err == nil && v > 0 {
		filter.TemplateId = &v
	}
	if v, err := strconv.Atoi(c.Query("year")); err == nil && v > 0 {
		filter.Year = &v
	}
	f, err := reports.AuditWorkbook(c.Request.Context(), a.db, filter)
	if err != nil {
		writeError(c, "auditExport", err)
		return
	}
	defer f.Close()

	name := fmt.Sprintf("audit-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename="+name)
	c.Status(http.StatusOK)
	if err := f.Write(c.Writer); err != nil {
		_ = c.Error(err)
	}
}
