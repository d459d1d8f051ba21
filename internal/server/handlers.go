package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"promptmaster-nano/internal/analyzer"
	"promptmaster-nano/internal/media"
	"promptmaster-nano/internal/model"
	"promptmaster-nano/internal/workshop"
)

type loginRequest struct {
	Method string `json:"method" binding:"required"`
}

type phoneRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

func (s *Server) handleLoginStart(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	t, err := s.sessions.Start(c.Request.Context(), model.LoginType(strings.ToLower(strings.TrimSpace(req.Method))))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleLoginPoll(c *gin.Context) {
	t, err := s.sessions.Poll(c.Request.Context(), c.Param("ticket"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleLoginPhone(c *gin.Context) {
	var req phoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	t, err := s.sessions.SubmitPhone(c.Param("ticket"), req.Phone, req.Code)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleLoginBack(c *gin.Context) {
	t, err := s.sessions.Back(c.Param("ticket"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleMe(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

func (s *Server) handleLogout(c *gin.Context) {
	u := currentUser(c)
	if err := s.sessions.Logout(c.Request.Context(), u.ID); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAnalyze(c *gin.Context) {
	u := currentUser(c)

	// leave room for the text fields next to the files
	if s.limits.MaxBytes > 0 && s.limits.MaxItems > 0 {
		maxBody := s.limits.MaxBytes*int64(s.limits.MaxItems) + 1<<20
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}

	target, ok := model.ParseTarget(c.PostForm("target"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown target %q", c.PostForm("target"))})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	items, err := media.ReadAll(ctx, form.File["media"], s.limits)
	if err != nil {
		s.writeError(c, err)
		return
	}

	rec, err := s.workshop.Generate(ctx, u.ID, analyzer.Request{
		Media:        items,
		Instructions: strings.TrimSpace(c.PostForm("instructions")),
		Target:       target,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := workshop.DefaultLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	records, err := s.workshop.History(c.Request.Context(), currentUser(c).ID, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": records})
}

func (s *Server) handleHistoryDelete(c *gin.Context) {
	if err := s.workshop.Delete(c.Request.Context(), currentUser(c).ID, c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleHistoryClear(c *gin.Context) {
	n, err := s.workshop.Clear(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

func (s *Server) handleHistoryExport(c *gin.Context) {
	raw, err := s.workshop.Export(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, workshop.ExportFilename(s.now())))
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}
