package ui

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"stacingest/domain/ingest"
	"stacingest/domain/summary"
	apperrors "stacingest/internal/errors"
	"stacingest/internal/session"
	"stacingest/internal/validation"
)

type createSessionRequest struct {
	Type   string `json:"type" binding:"required,oneof=dataset collection"`
	Strict bool   `json:"strict"`
}

type loadRequest struct {
	Ref string `json:"ref" binding:"required"`
}

type strictRequest struct {
	Strict *bool `json:"strict" binding:"required"`
}

type addSummaryRequest struct {
	Key   string          `json:"key"`
	Kind  summary.Kind    `json:"kind" binding:"required"`
	Value json.RawMessage `json:"value"`
}

type extensionRequest struct {
	URL string `json:"url" binding:"required,url"`
}

type extensionValuesRequest struct {
	URL    string          `json:"url" binding:"required"`
	Values ingest.Document `json:"values" binding:"required"`
}

type confirmRequest struct {
	Comment *string `json:"comment"`
}

// validationFailure is returned when a document cannot be accepted as is
type validationFailure struct {
	errorBody
	Validation validation.Result `json:"validation"`
}

func (s *Server) handleListSessions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := s.sessions.List(c.Request.Context(), limit)
	if err != nil {
		s.abort(c, err)
		return
	}

	caller := identityOf(c)
	out := make([]gin.H, 0, len(records))
	for _, rec := range records {
		if rec.Owner != "" && rec.Owner != caller.Subject {
			continue
		}
		identity, _ := rec.IngestionType.Identity(rec.Document)
		out = append(out, gin.H{
			"id":        rec.ID,
			"type":      rec.IngestionType,
			"identity":  identity,
			"state":     rec.State,
			"editing":   rec.Edit != nil,
			"updatedAt": rec.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req createSessionRequest
	if !s.bind(c, &req) {
		return
	}
	typ := ingest.IngestionType(req.Type)
	caller := identityOf(c)
	if err := s.authorizer.CanCreate(caller, typ); err != nil {
		s.abort(c, err)
		return
	}

	sess, err := s.sessions.Create(c.Request.Context(), typ, req.Strict, caller.Subject)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess.View())
}

func (s *Server) handleGetSession(c *gin.Context, sess *session.Session) {
	c.JSON(http.StatusOK, sess.View())
}

func (s *Server) handleDeleteSession(c *gin.Context, sess *session.Session) {
	if err := s.sessions.Delete(c.Request.Context(), sess.ID()); err != nil {
		s.abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleLoadExisting(c *gin.Context, sess *session.Session) {
	var req loadRequest
	if !s.bind(c, &req) {
		return
	}
	if err := s.authorizer.CanCreate(identityOf(c), sess.Type()); err != nil {
		s.abort(c, err)
		return
	}
	if err := sess.LoadExisting(c.Request.Context(), req.Ref); err != nil {
		s.persist(c, sess)
		s.abort(c, err)
		return
	}
	s.respondView(c, sess)
}

func (s *Server) handleFormChange(c *gin.Context, sess *session.Session) {
	var partial ingest.Document
	if !s.bindDocument(c, &partial) {
		return
	}
	if err := sess.ApplyForm(partial); err != nil {
		s.abort(c, err)
		return
	}
	s.respondView(c, sess)
}

func (s *Server) handleRawChange(c *gin.Context, sess *session.Session) {
	var full ingest.Document
	if !s.bindDocument(c, &full) {
		return
	}
	res, err := sess.ApplyRaw(full)
	if err != nil {
		s.rejectDocument(c, err, res)
		return
	}
	s.respondView(c, sess)
}

func (s *Server) handleAdditionalChange(c *gin.Context, sess *session.Session) {
	var next ingest.Document
	if !s.bindDocument(c, &next) {
		return
	}
	if err := sess.ApplyAdditional(next); err != nil {
		s.abort(c, err)
		return
	}
	s.respondView(c, sess)
}

func (s *Server) handleSetStrict(c *gin.Context, sess *session.Session) {
	var req strictRequest
	if !s.bind(c, &req) {
		return
	}
	sess.SetStrict(*req.Strict)
	s.respondView(c, sess)
}

func (s *Server) handleReplaceSummaries(c *gin.Context, sess *session.Session) {
	var entries map[string]summary.Value
	if err := c.ShouldBindJSON(&entries); err != nil {
		s.abort(c, apperrors.InvalidInput("summaries must map keys to tagged summary values: "+err.Error()))
		return
	}
	if err := sess.ReplaceSummaries(entries); err != nil {
		s.abort(c, err)
		return
	}
	s.respondView(c, sess)
}

func (s *Server) handleAddSummary(c *gin.Context, sess *session.Session) {
	var req addSummaryRequest
	if !s.bind(c, &req) {
		return
	}
	value, err := decodeSummary(req.Kind, req.Value)
	if err != nil {
		s.abort(c, apperrors.InvalidInput(err.Error()))
		return
	}
	key, err := sess.AddSummary(req.Key, value)
	if err != nil {
		s.abort(c, err)
		return
	}
	s.persist(c, sess)
	c.JSON(http.StatusCreated, gin.H{"key": key, "session": sess.View()})
}

func (s *Server) handleRemoveSummary(c *gin.Context, sess *session.Session) {
	if err := sess.RemoveSummary(c.Param("key")); err != nil {
		s.abort(c, err)
		return
	}
	s.respondView(c, sess)
}

func (s *Server) handleAddExtension(c *gin.Context, sess *session.Session) {
	var req extensionRequest
	if !s.bind(c, &req) {
		return
	}
	if _, err := sess.AddExtension(c.Request.Context(), req.URL); err != nil {
		s.abort(c, err)
		return
	}
	s.respondView(c, sess)
}

func (s *Server) handleExtensionValues(c *gin.Context, sess *session.Session) {
	var req extensionValuesRequest
	if !s.bind(c, &req) {
		return
	}
	if err := sess.ApplyExtensionValues(req.URL, req.Values); err != nil {
		s.abort(c, err)
		return
	}
	s.respondView(c, sess)
}

func (s *Server) handleRemoveExtension(c *gin.Context, sess *session.Session) {
	url := c.Query("url")
	if url == "" {
		s.abort(c, apperrors.InvalidInput("url query parameter is required"))
		return
	}
	if err := sess.RemoveExtension(url); err != nil {
		s.abort(c, err)
		return
	}
	s.respondView(c, sess)
}

func (s *Server) handleSubmit(c *gin.Context, sess *session.Session) {
	if err := s.authorizer.CheckTenants(identityOf(c), sess.View().Raw); err != nil {
		s.abort(c, err)
		return
	}
	status, res, err := sess.Submit(c.Request.Context())
	if err != nil && !res.Valid() {
		s.rejectDocument(c, err, res)
		return
	}
	s.respondStatus(c, sess, status, err)
}

func (s *Server) handleContinue(c *gin.Context, sess *session.Session) {
	status, err := sess.ContinueAnyway()
	s.respondStatus(c, sess, status, err)
}

func (s *Server) handleCancel(c *gin.Context, sess *session.Session) {
	status, err := sess.Cancel()
	s.respondStatus(c, sess, status, err)
}

func (s *Server) handleConfirm(c *gin.Context, sess *session.Session) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil && !stderrors.Is(err, io.EOF) {
		s.abort(c, apperrors.InvalidInput("invalid request body: "+err.Error()))
		return
	}
	if err := s.authorizer.CheckTenants(identityOf(c), sess.Submission().Staged); err != nil {
		s.abort(c, err)
		return
	}
	status, err := sess.Confirm(c.Request.Context(), req.Comment)
	s.respondStatus(c, sess, status, err)
}

func (s *Server) handleReset(c *gin.Context, sess *session.Session) {
	status, err := sess.Reset()
	s.respondStatus(c, sess, status, err)
}

// respondView persists the session and writes its view
func (s *Server) respondView(c *gin.Context, sess *session.Session) {
	s.persist(c, sess)
	c.JSON(http.StatusOK, sess.View())
}

// respondStatus writes a submission status, or err when the action was refused
func (s *Server) respondStatus(c *gin.Context, sess *session.Session, status any, err error) {
	s.persist(c, sess)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) rejectDocument(c *gin.Context, err error, res validation.Result) {
	if res.Valid() {
		s.abort(c, err)
		return
	}
	_, code := classify(err)
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, validationFailure{
		errorBody:  errorBody{Error: apperrors.UserMessage(err), Code: code},
		Validation: res,
	})
}

// persist saves a snapshot; a storage failure is logged, not returned
func (s *Server) persist(c *gin.Context, sess *session.Session) {
	if err := s.sessions.Save(c.Request.Context(), sess); err != nil {
		s.logger.Warn("[API] session %s not persisted: %v", sess.ID(), err)
	}
}

func (s *Server) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		s.abort(c, apperrors.InvalidInput("invalid request body: "+err.Error()))
		return false
	}
	return true
}

func (s *Server) bindDocument(c *gin.Context, doc *ingest.Document) bool {
	if err := c.ShouldBindJSON(doc); err != nil {
		s.abort(c, apperrors.InvalidInput("request body must be a JSON object: "+err.Error()))
		return false
	}
	if *doc == nil {
		*doc = ingest.Document{}
	}
	return true
}

// decodeSummary builds a summary value from the {kind, value} request form
func decodeSummary(kind summary.Kind, raw json.RawMessage) (summary.Value, error) {
	switch kind {
	case summary.KindRange:
		var r struct {
			Minimum *float64 `json:"minimum"`
			Maximum *float64 `json:"maximum"`
		}
		if len(raw) == 0 {
			return summary.Range(0, 0), nil
		}
		if err := json.Unmarshal(raw, &r); err != nil || r.Minimum == nil || r.Maximum == nil {
			return summary.Value{}, errRangeValue
		}
		return summary.Range(*r.Minimum, *r.Maximum), nil
	case summary.KindSet:
		var values []string
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &values); err != nil {
				return summary.Value{}, errSetValue
			}
		}
		return summary.Set(values...), nil
	case summary.KindJSONSchema:
		var fragment any = map[string]any{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &fragment); err != nil {
				return summary.Value{}, errFragmentValue
			}
		}
		return summary.Fragment(fragment), nil
	}
	return summary.Value{}, errSummaryKind
}

var (
	errRangeValue    = apperrors.InvalidInput("range value needs numeric minimum and maximum")
	errSetValue      = apperrors.InvalidInput("set value must be a list of strings")
	errFragmentValue = apperrors.InvalidInput("jsonschema value must be JSON")
	errSummaryKind   = apperrors.InvalidInput("kind must be range, set or jsonschema")
)
