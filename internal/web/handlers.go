package web

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/importkit/internal/core"
	"github.com/JonMunkholm/importkit/internal/csvfile"
	"github.com/JonMunkholm/importkit/internal/logging"
	"github.com/JonMunkholm/importkit/internal/report"
	"github.com/JonMunkholm/importkit/internal/tasks"
)

type definitionResponse struct {
	Key    string          `json:"key"`
	Label  string          `json:"label"`
	Group  string          `json:"group"`
	Fields []fieldResponse `json:"fields"`
}

type fieldResponse struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Rules    string `json:"rules,omitempty"`
	Optional bool   `json:"optional,omitempty"`
	Remark   string `json:"remark,omitempty"`
}

type importResponse struct {
	ID         string        `json:"id"`
	TotalRows  int           `json:"total_rows"`
	Accepted   int           `json:"accepted"`
	Rejected   []rejectedRow `json:"rejected"`
	ReportPath string        `json:"report_path,omitempty"`
	DurationMS int64         `json:"duration_ms"`
}

type rejectedRow struct {
	Line     int      `json:"line"`
	Kind     string   `json:"kind"`
	Messages []string `json:"messages"`
}

// handleListDefinitions returns every registered import definition.
func (s *Server) handleListDefinitions(w http.ResponseWriter, r *http.Request) {
	defs := tasks.All()
	out := make([]definitionResponse, 0, len(defs))
	for _, def := range defs {
		fields := make([]fieldResponse, 0, len(def.Specs))
		for _, spec := range def.Specs {
			fields = append(fields, fieldResponse{
				Name:     spec.Name,
				Label:    spec.Display(),
				Rules:    spec.Rules,
				Optional: spec.Optional,
				Remark:   spec.Remark,
			})
		}
		out = append(out, definitionResponse{
			Key:    def.Key,
			Label:  def.Label,
			Group:  def.Group,
			Fields: fields,
		})
	}
	writeJSON(w, out)
}

// handleTemplate serves an empty sheet for the definition: one header row of
// display labels, remarks in parentheses.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	def, ok := tasks.Get(key)
	if !ok {
		writeError(w, r, http.StatusNotFound, "unknown import definition")
		return
	}

	header := make([]string, 0, len(def.Specs))
	for _, spec := range def.Specs {
		label := spec.Display()
		if spec.Remark != "" {
			label += " (" + spec.Remark + ")"
		}
		header = append(header, label)
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+key+`.csv"`)
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		logging.FromContext(r.Context()).Error("template write failed", "error", err)
		return
	}
	cw.Flush()
}

// handleImport runs one import over an uploaded sheet. The file arrives as
// multipart field "file"; ?match=strict and ?fail_fast=true tune the run.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r, s.cfg.Timeout)
	defer cancel()
	log := logging.FromContext(ctx)

	key := chi.URLParam(r, "key")
	def, ok := tasks.Get(key)
	if !ok {
		writeError(w, r, http.StatusNotFound, "unknown import definition")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "missing file upload")
		return
	}
	defer file.Close()

	reader, err := csvfile.FromReader(file, s.cfg.MaxFileSize)
	if err != nil {
		writeError(w, r, http.StatusRequestEntityTooLarge, err.Error())
		return
	}

	opts := core.Options{
		MaxRows:        s.cfg.MaxRows,
		UseTransaction: s.cfg.UseTransaction,
		ReportInterval: s.cfg.ReportInterval,
		UseDefault:     true,
	}
	if r.URL.Query().Get("match") == "strict" {
		opts.MatchMode = core.MatchStrict
	}
	if r.URL.Query().Get("fail_fast") == "true" {
		opts.FailFast = true
	}

	task, err := def.NewTask(s.db, s.tx, opts,
		core.WithReportWriter(report.NewWriter(s.cfg.ReportDir)),
		core.WithLogger(log.With("definition", def.Key)))
	if err != nil {
		log.Error("task assembly failed", "definition", def.Key, "error", err)
		writeError(w, r, http.StatusInternalServerError, "import could not be prepared")
		return
	}

	result, err := task.Handle(ctx, reader)
	if err != nil {
		writeImportError(w, r, err)
		return
	}

	rejected := make([]rejectedRow, 0, len(result.Rejected))
	for _, rec := range result.Rejected {
		rejected = append(rejected, rejectedRow{
			Line:     rec.Line,
			Kind:     rec.Kind.String(),
			Messages: rec.Messages,
		})
	}
	writeJSON(w, importResponse{
		ID:         result.ID,
		TotalRows:  result.TotalRows,
		Accepted:   len(result.Accepted),
		Rejected:   rejected,
		ReportPath: result.ReportPath,
		DurationMS: result.Duration.Milliseconds(),
	})
}

// handleReport serves an error-report artifact by file name.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name != filepath.Base(name) || strings.Contains(name, "..") || !strings.HasSuffix(name, ".csv") {
		writeError(w, r, http.StatusBadRequest, "invalid report name")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	http.ServeFile(w, r, filepath.Join(s.cfg.ReportDir, name))
}

// writeImportError maps pipeline failures to HTTP responses: problems with
// the submitted sheet are the client's, everything else is ours.
func writeImportError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		mismatch *core.ColumnMismatchError
		maxRows  *core.MaxRowExceededError
		rowErr   *core.RowFailedError
	)
	switch {
	case errors.As(err, &mismatch), errors.As(err, &maxRows), errors.As(err, &rowErr):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		logging.FromContext(r.Context()).Error("import failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "import failed")
	}
}

// writeError writes a JSON error response and logs it with the request id.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	if r != nil {
		logging.FromContext(r.Context()).Warn("request rejected",
			"path", r.URL.Path,
			"status", status,
			"message", message)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", "error", err)
	}
}

// contextWithTimeout bounds the request context when a positive timeout is
// configured.
func contextWithTimeout(r *http.Request, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(r.Context(), timeout)
	}
	return context.WithCancel(r.Context())
}
