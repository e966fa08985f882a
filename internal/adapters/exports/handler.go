package exports

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fragmentcore/docs/schema/openapi"
	"fragmentcore/internal/core"
	"fragmentcore/pkg/fragmentapi"
)

// Resolver exposes fragment resolution, the loader and plugin catalog, and
// the resolution log for HTTP handlers and the export worker. *core.Service
// satisfies it.
type Resolver interface {
	ResolveFragment(ctx context.Context, ref string) (fragmentapi.Fragment, core.Resolution, error)
	ListFragmentLoaders() []fragmentapi.LoaderDescriptor
	ListPlugins() []core.PluginMetadata
	ListResolutions(ctx context.Context) ([]core.Resolution, error)
	GetResolution(ctx context.Context, id string) (core.Resolution, bool, error)
}

// Handler provides HTTP access to fragment loaders, resolution, and exports.
type Handler struct {
	Resolver Resolver
	Exports  ExportScheduler
}

// NewHandler constructs a fragment HTTP handler.
func NewHandler(resolver Resolver) *Handler {
	return &Handler{Resolver: resolver}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Resolver == nil {
		writeError(w, http.StatusInternalServerError, "fragment resolver not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodGet && path == "/api/v1/openapi.json":
		h.handleOpenAPI(w)
		return
	case r.Method == http.MethodGet && path == "/api/v1/fragments/loaders":
		h.handleListLoaders(w, r)
		return
	case r.Method == http.MethodGet && path == "/api/v1/fragments/plugins":
		h.handleListPlugins(w)
		return
	case strings.HasPrefix(path, "/api/v1/fragments/exports"):
		if h.Exports == nil {
			http.NotFound(w, r)
			return
		}
		h.handleExports(w, r, path)
		return
	case strings.HasPrefix(path, "/api/v1/fragments/loaders/"):
		h.handleLoader(w, r, strings.TrimPrefix(path, "/api/v1/fragments/loaders/"))
		return
	case path == "/api/v1/fragments/resolutions":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleResolutionList(w, r)
		return
	case strings.HasPrefix(path, "/api/v1/fragments/resolutions/"):
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleResolutionDetail(w, r, strings.TrimPrefix(path, "/api/v1/fragments/resolutions/"))
		return
	case path == "/api/v1/fragments/parse":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleParse(w, r)
		return
	case path == "/api/v1/fragments/resolve":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleResolve(w, r)
		return
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleListLoaders(w http.ResponseWriter, _ *http.Request) {
	loaders := h.Resolver.ListFragmentLoaders()
	writeJSON(w, http.StatusOK, map[string]any{"loaders": loaders})
}

func (h *Handler) handleLoader(w http.ResponseWriter, r *http.Request, remainder string) {
	segments := strings.Split(remainder, "/")
	if len(segments) != 3 {
		writeError(w, http.StatusNotFound, "fragment loader not found")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	plugin, prefix, version := segments[0], segments[1], segments[2]
	slug := fmt.Sprintf("%s/%s@%s", plugin, prefix, version)

	for _, descriptor := range h.Resolver.ListFragmentLoaders() {
		if descriptor.Slug == slug {
			writeJSON(w, http.StatusOK, map[string]any{"loader": descriptor})
			return
		}
	}
	writeError(w, http.StatusNotFound, "fragment loader not found")
}

func (h *Handler) handleOpenAPI(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapi.Document())
}

func (h *Handler) handleListPlugins(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{"plugins": h.Resolver.ListPlugins()})
}

// formatHTML is only offered by the resolution log view; export bundles
// render json, text, and csv.
const formatHTML = "html"

func (h *Handler) handleResolutionList(w http.ResponseWriter, r *http.Request) {
	format := listFormat(r)
	if format == "" {
		writeError(w, http.StatusNotAcceptable, "requested format not supported")
		return
	}
	entries, err := h.Resolver.ListResolutions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	switch format {
	case string(FormatCSV):
		streamResolutionsCSV(w, entries)
	case formatHTML:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buildResolutionsHTML(entries))
	default:
		writeJSON(w, http.StatusOK, map[string]any{"resolutions": entries})
	}
}

func (h *Handler) handleResolutionDetail(w http.ResponseWriter, r *http.Request, id string) {
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	resolution, ok, err := h.Resolver.GetResolution(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "resolution not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resolution": resolution})
}

func streamResolutionsCSV(w http.ResponseWriter, entries []core.Resolution) {
	filename := fmt.Sprintf("resolutions-%s.csv", time.Now().UTC().Format("20060102T150405Z"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"id", "ref", "prefix", "argument", "plugin", "loader", "status", "content_bytes", "content_sha256", "duration_ms", "error"}); err != nil {
		return
	}
	for _, entry := range entries {
		row := []string{
			entry.ID,
			entry.Ref,
			entry.Prefix,
			entry.Argument,
			entry.Plugin,
			entry.Loader,
			string(entry.Status),
			strconv.Itoa(entry.ContentBytes),
			entry.ContentSHA256,
			strconv.FormatInt(entry.DurationMS, 10),
			entry.Error,
		}
		if err := writer.Write(row); err != nil {
			return
		}
	}
}

func buildResolutionsHTML(entries []core.Resolution) []byte {
	buf := &strings.Builder{}
	buf.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>Resolution log</title></head><body><table>")
	buf.WriteString("<thead><tr>")
	for _, column := range []string{"ref", "plugin", "loader", "status", "content_bytes", "duration_ms", "error"} {
		buf.WriteString("<th>")
		buf.WriteString(column)
		buf.WriteString("</th>")
	}
	buf.WriteString("</tr></thead><tbody>")
	for _, entry := range entries {
		cells := []string{
			entry.Ref,
			entry.Plugin,
			entry.Loader,
			string(entry.Status),
			strconv.Itoa(entry.ContentBytes),
			strconv.FormatInt(entry.DurationMS, 10),
			entry.Error,
		}
		buf.WriteString("<tr>")
		for _, cell := range cells {
			buf.WriteString("<td>")
			buf.WriteString(html.EscapeString(cell))
			buf.WriteString("</td>")
		}
		buf.WriteString("</tr>")
	}
	buf.WriteString("</tbody></table></body></html>")
	return []byte(buf.String())
}

func (h *Handler) handleExports(w http.ResponseWriter, r *http.Request, path string) {
	if path == "/api/v1/fragments/exports" {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleExportCreate(w, r)
		return
	}

	if !strings.HasPrefix(path, "/api/v1/fragments/exports/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.TrimPrefix(path, "/api/v1/fragments/exports/")
	if rest == "" {
		http.NotFound(w, r)
		return
	}
	if id, ok := strings.CutSuffix(rest, "/artifact"); ok {
		h.handleExportArtifact(w, r, id)
		return
	}
	record, ok := h.Exports.GetExport(rest)
	if !ok {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"export": record})
}

func (h *Handler) handleExportArtifact(w http.ResponseWriter, r *http.Request, id string) {
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	format := strings.ToLower(r.URL.Query().Get("format"))
	artifact, payload, err := h.Exports.FetchArtifact(r.Context(), id, format)
	if err != nil {
		switch {
		case errors.Is(err, ErrExportNotFound), errors.Is(err, ErrArtifactNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, ErrExportNotReady):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	contentType := artifact.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", artifactFilename(id, artifact.Format)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func artifactFilename(id string, format BundleFormat) string {
	ext := "bin"
	switch format {
	case FormatJSON:
		ext = "json"
	case FormatText:
		ext = "txt"
	case FormatCSV:
		ext = "csv"
	}
	return fmt.Sprintf("export-%s.%s", id, ext)
}

type parseRequest struct {
	Ref string `json:"ref"`
}

type parseResponse struct {
	Ref      string `json:"ref"`
	Valid    bool   `json:"valid"`
	Prefix   string `json:"prefix,omitempty"`
	Argument string `json:"argument,omitempty"`
	Loader   string `json:"loader,omitempty"`
	Error    string `json:"error,omitempty"`
}

const emptyBodySentinel = "EOF"

func (h *Handler) handleParse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != emptyBodySentinel {
		writeError(w, http.StatusBadRequest, "invalid parse request payload")
		return
	}
	parsed, err := fragmentapi.ParseRef(req.Ref)
	if err != nil {
		writeJSON(w, http.StatusOK, parseResponse{Ref: req.Ref, Valid: false, Error: err.Error()})
		return
	}
	resp := parseResponse{
		Ref:      parsed.Ref,
		Valid:    true,
		Prefix:   parsed.Prefix,
		Argument: parsed.Argument,
	}
	for _, descriptor := range h.Resolver.ListFragmentLoaders() {
		if descriptor.Prefix == parsed.Prefix {
			resp.Loader = descriptor.Slug
			break
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type resolveRequest struct {
	Ref string `json:"ref"`
}

type resolveResponse struct {
	Fragment   fragmentapi.Fragment `json:"fragment"`
	Resolution core.Resolution      `json:"resolution"`
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != emptyBodySentinel {
		writeError(w, http.StatusBadRequest, "invalid resolve request payload")
		return
	}
	if _, err := fragmentapi.ParseRef(req.Ref); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	format := negotiateFormat(r)
	if format == "" {
		writeError(w, http.StatusNotAcceptable, "requested format not supported")
		return
	}

	fragment, resolution, err := h.Resolver.ResolveFragment(r.Context(), req.Ref)
	if err != nil {
		var violation core.RuleViolationError
		switch {
		case errors.Is(err, core.ErrUnknownPrefix):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.As(err, &violation):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":      err.Error(),
				"resolution": resolution,
			})
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	switch BundleFormat(format) {
	case FormatText:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(fragment.Content))
	default:
		writeJSON(w, http.StatusOK, resolveResponse{Fragment: fragment, Resolution: resolution})
	}
}

type exportRequest struct {
	Refs        []string `json:"refs"`
	Formats     []string `json:"formats"`
	RequestedBy string   `json:"requested_by"`
	Reason      string   `json:"reason"`
}

func (h *Handler) handleExportCreate(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != emptyBodySentinel {
		writeError(w, http.StatusBadRequest, "invalid export request payload")
		return
	}

	formats := make([]BundleFormat, 0, len(req.Formats))
	for _, f := range req.Formats {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "json":
			formats = append(formats, FormatJSON)
		case "text", "txt":
			formats = append(formats, FormatText)
		case "csv":
			formats = append(formats, FormatCSV)
		default:
			writeError(w, http.StatusBadRequest, "unsupported export format")
			return
		}
	}

	record, err := h.Exports.EnqueueExport(r.Context(), ExportInput{
		Refs:        req.Refs,
		Formats:     formats,
		RequestedBy: firstNonEmpty(req.RequestedBy, r.Header.Get("X-Requested-By")),
		Reason:      req.Reason,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"export": record})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func negotiateFormat(r *http.Request) string {
	wanted := strings.ToLower(r.URL.Query().Get("format"))
	if wanted == "" {
		accept := r.Header.Get("Accept")
		if strings.Contains(accept, "text/plain") {
			wanted = string(FormatText)
		} else {
			wanted = string(FormatJSON)
		}
	}
	switch BundleFormat(wanted) {
	case FormatJSON, FormatText:
		return wanted
	}
	return ""
}

func listFormat(r *http.Request) string {
	wanted := strings.ToLower(r.URL.Query().Get("format"))
	if wanted == "" {
		accept := r.Header.Get("Accept")
		switch {
		case strings.Contains(accept, "text/csv"):
			wanted = string(FormatCSV)
		case strings.Contains(accept, "text/html"):
			wanted = formatHTML
		default:
			wanted = string(FormatJSON)
		}
	}
	switch wanted {
	case string(FormatJSON), string(FormatCSV), formatHTML:
		return wanted
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
