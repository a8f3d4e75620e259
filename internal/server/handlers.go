package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/csvagent"
	"github.com/nao1215/csvagent/domain/model"
)

// defaultPreviewRows matches the number of rows shown after an upload
const defaultPreviewRows = 5

type tableView struct {
	File     string                `json:"file"`
	FileType string                `json:"file_type"`
	Summary  model.TableSummary    `json:"summary"`
	Profiles []model.ColumnProfile `json:"profiles"`
	Columns  []model.Column        `json:"columns"`
	Rows     []model.Record        `json:"rows"`
}

func newTableView(result *csvagent.LoadResult, limit int) tableView {
	return tableView{
		File:     filepath.Base(result.Path),
		FileType: result.FileType.String(),
		Summary:  result.Summary,
		Profiles: result.Profiles,
		Columns:  result.Table.Columns(),
		Rows:     result.Table.Head(limit),
	}
}

type columnsRequest struct {
	Names        []string `json:"names"`
	Descriptions []string `json:"descriptions"`
}

type exportRequest struct {
	Format      string `json:"format"`
	Compression string `json:"compression"`
	BaseName    string `json:"base_name"`
}

type askRequest struct {
	Question string `json:"question" binding:"required"`
}

func (s *Server) health(c *gin.Context) {
	success(c, http.StatusOK, gin.H{"session": s.current().ID()}, "ok")
}

func (s *Server) upload(c *gin.Context) {
	if s.cfg.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)
	}
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, http.StatusRequestEntityTooLarge, err, "File is too large")
			return
		}
		fail(c, http.StatusBadRequest, err, "Multipart field \"file\" is required")
		return
	}

	f, err := header.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, err, "Failed to read upload")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		fail(c, http.StatusBadRequest, err, "Failed to read upload")
		return
	}

	result, err := s.current().Upload(c.Request.Context(), data, header.Filename)
	if err != nil {
		failFor(c, err, "Failed to load file")
		return
	}
	success(c, http.StatusCreated, newTableView(result, defaultPreviewRows), "File loaded")
}

func (s *Server) table(c *gin.Context) {
	limit := defaultPreviewRows
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fail(c, http.StatusBadRequest, nil, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	result, err := s.current().Current()
	if err != nil {
		failFor(c, err, "No table loaded")
		return
	}
	success(c, http.StatusOK, newTableView(result, limit), "")
}

func (s *Server) columns(c *gin.Context) {
	var req columnsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.Names == nil && req.Descriptions == nil {
		fail(c, http.StatusBadRequest, nil, "names or descriptions are required")
		return
	}

	session := s.current()
	if req.Names != nil {
		if _, err := session.Rename(req.Names); err != nil {
			failFor(c, err, "Failed to rename columns")
			return
		}
	}
	if req.Descriptions != nil {
		if _, err := session.Describe(req.Descriptions); err != nil {
			failFor(c, err, "Failed to describe columns")
			return
		}
	}

	result, err := session.Current()
	if err != nil {
		failFor(c, err, "No table loaded")
		return
	}
	success(c, http.StatusOK, newTableView(result, defaultPreviewRows), "Columns updated")
}

func (s *Server) export(c *gin.Context) {
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	format, err := model.ParseOutputFormat(req.Format)
	if err != nil {
		fail(c, http.StatusBadRequest, err, "Invalid format")
		return
	}
	compression, err := model.ParseCompressionType(req.Compression)
	if err != nil {
		fail(c, http.StatusBadRequest, err, "Invalid compression")
		return
	}
	options := model.NewDumpOptions().WithFormat(format).WithCompression(compression)
	if req.BaseName != "" {
		options = options.WithBaseName(req.BaseName)
	}

	path, err := s.current().Export(c.Request.Context(), options)
	if err != nil {
		failFor(c, err, "Failed to export table")
		return
	}
	success(c, http.StatusOK, gin.H{
		"file":     filepath.Base(path),
		"download": "/api/export/download",
	}, "Table exported")
}

func (s *Server) download(c *gin.Context) {
	path, ok := s.current().LastExport()
	if !ok {
		fail(c, http.StatusNotFound, nil, "Nothing has been exported")
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

func (s *Server) chat(c *gin.Context) {
	ctx := c.Request.Context()
	session := s.current()
	store, err := session.StartChat(ctx)
	if err != nil {
		failFor(c, err, "Failed to prepare the table for questions")
		return
	}
	schema, err := session.Schema(ctx)
	if err != nil {
		failFor(c, err, "Failed to read the schema")
		return
	}
	success(c, http.StatusOK, gin.H{
		"rows":   store.RowCount(),
		"schema": schema,
	}, "Ready for questions")
}

func (s *Server) ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		fail(c, http.StatusBadRequest, err, "question is required")
		return
	}

	result, err := s.current().Ask(c.Request.Context(), req.Question)
	if err != nil {
		s.logger.Warn("question failed", slog.String("error", err.Error()))
		failFor(c, err, "Failed to answer the question")
		return
	}
	success(c, http.StatusOK, result, "")
}

func (s *Server) history(c *gin.Context) {
	success(c, http.StatusOK, s.current().History(), "")
}

func (s *Server) reset(c *gin.Context) {
	s.mu.Lock()
	old := s.session
	s.session = s.newSession()
	id := s.session.ID()
	s.mu.Unlock()

	if err := old.Close(); err != nil {
		s.logger.Warn("failed to close session", slog.String("session", old.ID()), slog.String("error", err.Error()))
	}
	success(c, http.StatusOK, gin.H{"session": id}, "Session reset")
}
