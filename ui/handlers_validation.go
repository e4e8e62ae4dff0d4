package ui

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stacingest/domain/ingest"
	apperrors "stacingest/internal/errors"
	"stacingest/internal/normalize"
	"stacingest/internal/validation"
)

type validateRequest struct {
	Type       string          `json:"type" binding:"required,oneof=dataset collection"`
	Mode       string          `json:"mode" binding:"omitempty,oneof=strict permissive"`
	Document   ingest.Document `json:"document" binding:"required"`
	Extensions []string        `json:"extensionFields"`
	Normalize  bool            `json:"normalize"`
}

// handleValidate validates a document without a session
func (s *Server) handleValidate(c *gin.Context) {
	var req validateRequest
	if !s.bind(c, &req) {
		return
	}
	mode, err := validation.ParseMode(req.Mode)
	if err != nil {
		s.abort(c, apperrors.InvalidInput(err.Error()))
		return
	}
	typ := ingest.IngestionType(req.Type)

	doc := req.Document
	if req.Normalize {
		doc = normalize.Normalize(doc, s.validator.ContainerFields(typ))
	}
	res := s.validator.Validate(doc, validation.Options{
		Type:            typ,
		Mode:            mode,
		ExtensionFields: req.Extensions,
	})
	c.JSON(http.StatusOK, gin.H{"valid": res.Valid(), "validation": res, "document": doc})
}
