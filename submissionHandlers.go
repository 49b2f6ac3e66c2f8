package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/compliance_backend/middlewares"
	"github.com/mmdatafocus/compliance_backend/models"
	"github.com/mmdatafocus/compliance_backend/workflow"
	"gorm.io/gorm"
)

type api struct {
	db        *gorm.DB
	svc       *workflow.SubmissionService
	templates *workflow.TemplateRegistry
}

func newAPI(db *gorm.DB, deps workflow.ServiceDeps) *api {
	templates := workflow.NewTemplateRegistry(db)
	if deps.Templates == nil {
		deps.Templates = templates
	}
	if deps.Tracer == nil {
		deps.Tracer = tracer
	}
	return &api{db: db, svc: workflow.NewSubmissionService(db, deps), templates: templates}
}

func (a *api) routes(r gin.IRouter) {
	r.POST("/templates", middlewares.RequireRole("ADMIN", "DPA"), a.publishTemplate)
	r.GET("/templates/:id/latest", a.latestTemplate)
	r.GET("/templates/:id/versions/:version", a.templateVersion)

	r.GET("/submissions", a.listSubmissions)
	r.POST("/submissions", a.createSubmission)
	r.GET("/submissions/:id", a.getSubmission)
	r.GET("/submissions/:id/actions", a.availableActions)
	r.GET("/submissions/:id/integrity", a.verifyIntegrity)
	r.PUT("/submissions/:id/form-data", a.updateDraft)
	r.POST("/submissions/:id/submit", a.simpleTransition((*workflow.SubmissionService).Submit))
	r.POST("/submissions/:id/start-signing", a.simpleTransition((*workflow.SubmissionService).StartSigning))
	r.POST("/submissions/:id/sign", a.sign)
	r.POST("/submissions/:id/reject", a.reject)
	r.POST("/submissions/:id/delegate", a.delegate)
	r.POST("/submissions/:id/resubmit", a.resubmit)
	r.POST("/submissions/:id/amend", a.amend)
	r.POST("/submissions/:id/re-sign", a.simpleTransition((*workflow.SubmissionService).ReSign))
	r.POST("/submissions/:id/archive", a.simpleTransition((*workflow.SubmissionService).Archive))
	r.POST("/submissions/:id/attachments", a.addAttachment)
	r.POST("/submissions/:id/attachments/sign-upload", a.signAttachmentUpload)
	r.GET("/submissions/:id/attachments/:attachmentId/content", a.downloadAttachment)

	r.PUT("/signers/me/pin", a.setSignerPin)

	r.GET("/reports/audit", middlewares.RequireRole("DPA", "ADMIN"), a.auditExport)
}

func pathId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BadRequest", "message": "invalid " + name})
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BadRequest", "message": "invalid request body"})
		return false
	}
	return true
}

type createSubmissionRequest struct {
	TemplateId int                    `json:"template_id"`
	ScopeAbbr  string                 `json:"scope_abbr"`
	Year       int                    `json:"year"`
	FormData   map[string]interface{} `json:"form_data"`
}

func (a *api) createSubmission(c *gin.Context) {
	var req createSubmissionRequest
	if !bindJSON(c, &req) {
		return
	}
	sub, err := a.svc.Create(c.Request.Context(), req.TemplateId, workflow.CreateContext{
		ScopeAbbr:      req.ScopeAbbr,
		Year:           req.Year,
		IdempotencyKey: strings.TrimSpace(c.GetHeader("Idempotency-Key")),
	}, req.FormData)
	if err != nil {
		writeError(c, "createSubmission", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": sub})
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// pageLimit reads ?limit, clamping large values to maxPageLimit.
func pageLimit(raw string) int {
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return defaultPageLimit
	}
	if v > maxPageLimit {
		return maxPageLimit
	}
	return v
}

func (a *api) listSubmissions(c *gin.Context) {
	limit := pageLimit(c.Query("limit"))
	afterId, err := models.DecodeSubmissionCursor(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BadRequest", "message": err.Error()})
		return
	}
	// one extra row tells whether another page exists
	filter := models.SubmissionFilter{AfterId: afterId, Limit: limit + 1}
	if v := c.Query("status"); v != "" {
		status, err := models.ParseSubmissionStatus(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "BadRequest", "message": err.Error()})
			return
		}
		filter.Status = &status
	}
	if v, err := strconv.Atoi(c.Query("template_id")); err == nil && v > 0 {
		filter.TemplateId = &v
	}
	if v, err := strconv.Atoi(c.Query("year")); err == nil && v > 0 {
		filter.Year = &v
	}
	subs, err := models.ListSubmissions(c.Request.Context(), a.db, filter)
	if err != nil {
		writeError(c, "listSubmissions", err)
		return
	}
	page := models.PageInfo{}
	if len(subs) > limit {
		subs = subs[:limit]
		page.HasNextPage = true
	}
	if len(subs) > 0 {
		page.EndCursor = models.EncodeSubmissionCursor(subs[len(subs)-1].ID)
	}
	c.JSON(http.StatusOK, gin.H{"data": subs, "page_info": page})
}

func (a *api) getSubmission(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	detail, err := a.svc.Detail(c.Request.Context(), id)
	if err != nil {
		writeError(c, "getSubmission", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": detail})
}

func (a *api) availableActions(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	actions, err := a.svc.AvailableActions(c.Request.Context(), id)
	if err != nil {
		writeError(c, "availableActions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": actions})
}

func (a *api) verifyIntegrity(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	sub, err := a.svc.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, "verifyIntegrity", err)
		return
	}
	match, computed, err := sub.VerifyContentHash()
	if err != nil {
		writeError(c, "verifyIntegrity", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"submission_number": sub.SubmissionNumber,
		"stored_hash":       sub.ContentHash,
		"computed_hash":     computed,
		"match":             match,
	}})
}

// simpleTransition takes a method expression so routes can be registered before a.svc exists.
func (a *api) simpleTransition(fn func(svc *workflow.SubmissionService, ctx context.Context, id int) (*models.Submission, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		sub, err := fn(a.svc, c.Request.Context(), id)
		if err != nil {
			writeError(c, "transition", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": sub})
	}
}

type formDataRequest struct {
	FormData map[string]interface{} `json:"form_data"`
}

func (a *api) updateDraft(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var req formDataRequest
	if !bindJSON(c, &req) {
		return
	}
	sub, err := a.svc.UpdateDraft(c.Request.Context(), id, req.FormData)
	if err != nil {
		writeError(c, "updateDraft", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sub})
}

type signRequest struct {
	Order  int    `json:"order"`
	Method string `json:"method"`
	Pin    string `json:"pin"`
}

func (a *api) sign(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var req signRequest
	if !bindJSON(c, &req) {
		return
	}
	method := models.SignatureMethodAuth
	if req.Method != "" {
		m, err := models.ParseSignatureMethod(req.Method)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "BadRequest", "message": err.Error()})
			return
		}
		method = m
	}
	sub, err := a.svc.Sign(c.Request.Context(), id, req.Order, method, req.Pin)
	if err != nil {
		writeError(c, "sign", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sub})
}

type rejectRequest struct {
	Order  int    `json:"order"`
	Reason string `json:"reason"`
}

func (a *api) reject(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var req rejectRequest
	if !bindJSON(c, &req) {
		return
	}
	sub, err := a.svc.Reject(c.Request.Context(), id, req.Order, req.Reason)
	if err != nil {
		writeError(c, "reject", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sub})
}

type delegateRequest struct {
	Order    int    `json:"order"`
	ToUserId int    `json:"to_user_id"`
	Note     string `json:"note"`
}

func (a *api) delegate(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var req delegateRequest
	if !bindJSON(c, &req) {
		return
	}
	sub, err := a.svc.Delegate(c.Request.Context(), id, req.Order, req.ToUserId, req.Note)
	if err != nil {
		writeError(c, "delegate", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sub})
}

type resubmitRequest struct {
	CorrectionsNote string `json:"corrections_note"`
}

func (a *api) resubmit(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var req resubmitRequest
	// the body is optional
	_ = c.ShouldBindJSON(&req)
	sub, err := a.svc.Resubmit(c.Request.Context(), id, req.CorrectionsNote)
	if err != nil {
		writeError(c, "resubmit", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sub})
}

type amendRequest struct {
	FormData map[string]interface{} `json:"form_data"`
	Reason   string                 `json:"reason"`
	Approval *workflow.DPAApproval  `json:"approval"`
}

func (a *api) amend(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var req amendRequest
	if !bindJSON(c, &req) {
		return
	}
	sub, err := a.svc.Amend(c.Request.Context(), id, req.FormData, req.Reason, req.Approval)
	if err != nil {
		writeError(c, "amend", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sub})
}

func (a *api) addAttachment(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var req models.NewAttachment
	if !bindJSON(c, &req) {
		return
	}
	att, err := a.svc.AddAttachment(c.Request.Context(), id, &req)
	if err != nil {
		writeError(c, "addAttachment", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": att})
}

type setPinRequest struct {
	Pin string `json:"pin"`
}

func (a *api) setSignerPin(c *gin.Context) {
	who, err := workflow.ContextIdentityProvider{}.CurrentSigner(c.Request.Context())
	if err != nil {
		writeError(c, "setSignerPin", err)
		return
	}
	var req setPinRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := models.SetSignerPin(c.Request.Context(), a.db, who.CompanyId, who.UserId, req.Pin); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BadRequest", "message": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
