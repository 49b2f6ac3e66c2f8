package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/compliance_backend/config"
	"github.com/mmdatafocus/compliance_backend/models"
	"github.com/mmdatafocus/compliance_backend/workflow"
)

// statusForKind maps workflow error kinds to HTTP status codes.
var statusForKind = map[string]int{
	"PreconditionFailed":    http.StatusUnprocessableEntity,
	"FormValidation":        http.StatusUnprocessableEntity,
	"InvalidTransition":     http.StatusConflict,
	"AlreadySigned":         http.StatusConflict,
	"NotSigned":             http.StatusConflict,
	"NotPending":            http.StatusConflict,
	"NotDraft":              http.StatusConflict,
	"ConcurrencyConflict":   http.StatusConflict,
	"LockedFormEdit":        http.StatusConflict,
	"IdempotencyInProgress": http.StatusConflict,
	"NotAuthorizedSigner":   http.StatusForbidden,
	"IdentityRequired":      http.StatusUnauthorized,
}

// writeError renders err as {"error": kind, ...}. Unknown errors are logged and hidden.
func writeError(c *gin.Context, funcName string, err error) {
	if workflow.IsNotFound(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": "NotFound"})
		return
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = fe.Tag()
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "BadRequest", "fields": fields})
		return
	}
	if errors.Is(err, models.ErrInvalidTemplate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "InvalidTemplate", "message": err.Error()})
		return
	}
	if errors.Is(err, models.ErrTemplateVersionInUse) {
		c.JSON(http.StatusConflict, gin.H{"error": "TemplateVersionInUse"})
		return
	}

	kind := workflow.ErrorKind(err)
	status, ok := statusForKind[kind]
	if !ok {
		config.LogError(config.GetLogger(), "server", funcName, c.FullPath(), nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal"})
		return
	}

	body := gin.H{"error": kind, "message": err.Error()}
	var pf *workflow.PreconditionFailedError
	var fv *workflow.FormValidationError
	switch {
	case errors.As(err, &pf):
		body["precondition"] = pf.Name
		if len(pf.Fields) > 0 {
			body["fields"] = pf.Fields
		}
	case errors.As(err, &fv):
		body["fields"] = fv.Fields
	}
	c.JSON(status, body)
}
