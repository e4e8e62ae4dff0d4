package ui

import (
	"github.com/gin-gonic/gin"

	"stacingest/domain/core"
	"stacingest/internal/auth"
	apperrors "stacingest/internal/errors"
	"stacingest/internal/session"
)

const (
	identityKey = "identity"
	sessionKey  = "session"
)

// identify resolves the caller and stores it on the context
func (s *Server) identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := s.authorizer.Identify(c.Request.Header)
		if err != nil {
			s.abort(c, err)
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// requireScope rejects callers lacking scope
func (s *Server) requireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authorizer.Require(identityOf(c), scope); err != nil {
			s.abort(c, err)
			return
		}
		c.Next()
	}
}

// withSession loads the :id session, checks ownership and hands it to h
func (s *Server) withSession(h func(*gin.Context, *session.Session)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := core.ParseSessionID(c.Param("id"))
		if err != nil {
			s.abort(c, apperrors.InvalidInput(err.Error()))
			return
		}
		sess, err := s.sessions.Get(c.Request.Context(), id)
		if err != nil {
			s.abort(c, err)
			return
		}
		caller := identityOf(c)
		if sess.Owner() != "" && sess.Owner() != caller.Subject {
			s.logger.Warn("[API] %s denied access to session %s owned by %s", caller.Subject, id, sess.Owner())
			s.abort(c, apperrors.Forbidden("session belongs to another user"))
			return
		}
		c.Set(sessionKey, sess)
		h(c, sess)
	}
}

func identityOf(c *gin.Context) auth.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(auth.Identity); ok {
			return id
		}
	}
	return auth.Identity{}
}
