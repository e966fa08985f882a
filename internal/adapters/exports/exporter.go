// Package exports bundles resolved prompt fragments into downloadable
// artifacts. A background worker resolves the requested fragment refs through
// the core service, renders them in one or more bundle formats, and persists
// the results in an object store.
package exports

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"fragmentcore/internal/core"
	"fragmentcore/pkg/fragmentapi"
)

// Sentinel errors surfaced by artifact retrieval.
var (
	ErrExportNotFound   = errors.New("export not found")
	ErrExportNotReady   = errors.New("export not complete")
	ErrArtifactNotFound = errors.New("artifact not found")
)

// BundleFormat identifies a rendering of an export bundle.
type BundleFormat string

const (
	// FormatJSON renders fragments and their resolution records as one JSON document.
	FormatJSON BundleFormat = "json"
	// FormatText renders fragment contents as prompt-ready plain text.
	FormatText BundleFormat = "text"
	// FormatCSV renders the resolution log rows of the bundle as CSV.
	FormatCSV BundleFormat = "csv"
)

// ExportStatus describes the lifecycle stage of an export request.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

// ExportArtifact captures a stored bundle artifact.
type ExportArtifact struct {
	ID          string         `json:"id"`
	Format      BundleFormat   `json:"format"`
	ContentType string         `json:"content_type"`
	SizeBytes   int64          `json:"size_bytes"`
	URL         string         `json:"url"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ExportRecord tracks an export request and resulting artifacts.
type ExportRecord struct {
	ID          string           `json:"id"`
	Refs        []string         `json:"refs"`
	Formats     []BundleFormat   `json:"formats"`
	Status      ExportStatus     `json:"status"`
	Error       string           `json:"error,omitempty"`
	Artifacts   []ExportArtifact `json:"artifacts,omitempty"`
	RequestedBy string           `json:"requested_by"`
	Reason      string           `json:"reason,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// ExportInput represents an enqueue request for the worker.
type ExportInput struct {
	Refs        []string
	Formats     []BundleFormat
	RequestedBy string
	Reason      string
}

// ExportScheduler queues fragment export requests and exposes status.
type ExportScheduler interface {
	EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error)
	GetExport(id string) (ExportRecord, bool)
	FetchArtifact(ctx context.Context, id, format string) (ExportArtifact, []byte, error)
}

// ObjectStore persists export artifacts.
type ObjectStore interface {
	// Put stores a new immutable object. Implementations SHOULD fail if key exists.
	Put(ctx context.Context, key string, payload []byte, contentType string, metadata map[string]any) (ExportArtifact, error)
	// Get returns the artifact metadata and full payload bytes.
	Get(ctx context.Context, key string) (ExportArtifact, []byte, error)
	// Delete removes the object; returns true if it existed. Idempotent.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns artifacts whose IDs start with the provided prefix. Empty prefix lists all.
	List(ctx context.Context, prefix string) ([]ExportArtifact, error)
}

// AuditLogger records export audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures audit trail metadata for exports.
type AuditEntry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Actor      string         `json:"actor"`
	Refs       []string       `json:"refs,omitempty"`
	Status     ExportStatus   `json:"status"`
	Reason     string         `json:"reason,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

const auditActionExport = "fragment_export"

// Worker executes fragment bundle exports asynchronously.
type Worker struct {
	resolver Resolver
	store    ObjectStore
	audit    AuditLogger

	queue chan exportTask
	mu    sync.RWMutex
	jobs  map[string]*ExportRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type exportTask struct {
	id string
}

type resolvedFragment struct {
	Ref        string
	Fragment   fragmentapi.Fragment
	Resolution core.Resolution
}

type renderedArtifact struct {
	Artifact ExportArtifact
	Payload  []byte
}

// NewWorker constructs an export worker.
func NewWorker(resolver Resolver, store ObjectStore, audit AuditLogger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		resolver: resolver,
		store:    store,
		audit:    audit,
		queue:    make(chan exportTask, 32),
		jobs:     make(map[string]*ExportRecord),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// EnqueueExport schedules an export job and returns the queued record. Refs
// are validated and normalized up front; resolution happens asynchronously.
func (w *Worker) EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error) {
	if w.resolver == nil {
		return ExportRecord{}, fmt.Errorf("export resolver not configured")
	}
	if len(input.Refs) == 0 {
		return ExportRecord{}, fmt.Errorf("at least one fragment ref required")
	}
	refs := make([]string, 0, len(input.Refs))
	for _, ref := range input.Refs {
		req, err := fragmentapi.ParseRef(ref)
		if err != nil {
			return ExportRecord{}, err
		}
		refs = append(refs, req.Ref)
	}

	formats := input.Formats
	if len(formats) == 0 {
		formats = []BundleFormat{FormatJSON, FormatText}
	}
	uniqFormats := make([]BundleFormat, 0, len(formats))
	seen := make(map[BundleFormat]struct{})
	for _, format := range formats {
		if _, duplicate := seen[format]; duplicate {
			continue
		}
		switch format {
		case FormatJSON, FormatText, FormatCSV:
		default:
			return ExportRecord{}, fmt.Errorf("unsupported export format %s", format)
		}
		uniqFormats = append(uniqFormats, format)
		seen[format] = struct{}{}
	}

	id := newID()
	now := time.Now().UTC()
	record := ExportRecord{
		ID:          id,
		Refs:        refs,
		Formats:     uniqFormats,
		Status:      ExportStatusQueued,
		RequestedBy: input.RequestedBy,
		Reason:      input.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	queuedSnapshot := record.copy()
	w.mu.Unlock()

	if w.audit != nil {
		w.audit.Record(ctx, AuditEntry{
			ID:         newID(),
			Action:     auditActionExport,
			Actor:      input.RequestedBy,
			Refs:       refs,
			Status:     ExportStatusQueued,
			Reason:     input.Reason,
			OccurredAt: now,
		})
	}

	select {
	case w.queue <- exportTask{id: id}:
	default:
		return ExportRecord{}, fmt.Errorf("export queue full")
	}

	return queuedSnapshot, nil
}

// GetExport returns a snapshot of the export record.
func (w *Worker) GetExport(id string) (ExportRecord, bool) {
	w.mu.RLock()
	record, ok := w.jobs[id]
	if !ok {
		w.mu.RUnlock()
		return ExportRecord{}, false
	}
	snapshot := record.copy()
	w.mu.RUnlock()
	return snapshot, true
}

// FetchArtifact loads the stored payload for one artifact of a finished
// export. An empty format selects the artifact when the export rendered
// exactly one.
func (w *Worker) FetchArtifact(ctx context.Context, id, format string) (ExportArtifact, []byte, error) {
	record, ok := w.GetExport(id)
	if !ok {
		return ExportArtifact{}, nil, ErrExportNotFound
	}
	if record.Status != ExportStatusSucceeded {
		return ExportArtifact{}, nil, fmt.Errorf("%w: status %s", ErrExportNotReady, record.Status)
	}
	artifact, ok := selectArtifact(record.Artifacts, format)
	if !ok {
		return ExportArtifact{}, nil, ErrArtifactNotFound
	}
	if w.store == nil {
		return ExportArtifact{}, nil, fmt.Errorf("artifact store not configured")
	}
	stored, payload, err := w.store.Get(ctx, artifact.ID)
	if err != nil {
		return ExportArtifact{}, nil, fmt.Errorf("load artifact %s: %w", artifact.ID, err)
	}
	stored.Format = artifact.Format
	if stored.ContentType == "" {
		stored.ContentType = artifact.ContentType
	}
	return stored, payload, nil
}

func selectArtifact(artifacts []ExportArtifact, format string) (ExportArtifact, bool) {
	if format == "" {
		if len(artifacts) == 1 {
			return artifacts[0], true
		}
		return ExportArtifact{}, false
	}
	for _, artifact := range artifacts {
		if string(artifact.Format) == format {
			return artifact, true
		}
	}
	return ExportArtifact{}, false
}

func (w *Worker) process(task exportTask) {
	record := w.snapshot(task.id)
	if record == nil {
		return
	}

	w.updateStatus(task.id, ExportStatusRunning, "")

	resolved := make([]resolvedFragment, 0, len(record.Refs))
	for _, ref := range record.Refs {
		fragment, resolution, err := w.resolver.ResolveFragment(w.ctx, ref)
		if err != nil {
			w.fail(task.id, fmt.Sprintf("resolve %s: %v", ref, err))
			return
		}
		resolved = append(resolved, resolvedFragment{Ref: ref, Fragment: fragment, Resolution: resolution})
	}

	exportArtifacts := make([]ExportArtifact, 0, len(record.Formats))
	for _, format := range record.Formats {
		rendered, err := w.materialize(format, resolved)
		if err != nil {
			w.fail(task.id, err.Error())
			return
		}
		if w.store != nil {
			stored, err := w.store.Put(w.ctx, rendered.Artifact.ID, rendered.Payload, rendered.Artifact.ContentType, rendered.Artifact.Metadata)
			if err != nil {
				w.fail(task.id, fmt.Sprintf("store artifact failed: %v", err))
				return
			}
			stored.Format = rendered.Artifact.Format
			if stored.ContentType == "" {
				stored.ContentType = rendered.Artifact.ContentType
			}
			if stored.SizeBytes == 0 {
				stored.SizeBytes = rendered.Artifact.SizeBytes
			}
			if stored.CreatedAt.IsZero() {
				stored.CreatedAt = rendered.Artifact.CreatedAt
			}
			stored.Metadata = mergeMetadata(rendered.Artifact.Metadata, stored.Metadata)
			exportArtifacts = append(exportArtifacts, stored)
		} else {
			exportArtifacts = append(exportArtifacts, rendered.Artifact)
		}
	}

	w.complete(task.id, exportArtifacts)
}

func (w *Worker) snapshot(id string) *ExportRecord {
	w.mu.RLock()
	record, ok := w.jobs[id]
	w.mu.RUnlock()
	if !ok {
		return nil
	}
	return record
}

func (w *Worker) updateStatus(id string, status ExportStatus, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = now
	}
	w.mu.Unlock()
	if w.audit != nil {
		w.audit.Record(w.ctx, AuditEntry{
			ID:         newID(),
			Action:     auditActionExport,
			Actor:      w.actorFor(id),
			Refs:       w.refsFor(id),
			Status:     status,
			Metadata:   map[string]any{"note": message},
			OccurredAt: now,
		})
	}
}

func (w *Worker) complete(id string, artifacts []ExportArtifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = ExportStatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	if w.audit != nil {
		w.audit.Record(w.ctx, AuditEntry{
			ID:         newID(),
			Action:     auditActionExport,
			Actor:      w.actorFor(id),
			Refs:       w.refsFor(id),
			Status:     ExportStatusSucceeded,
			OccurredAt: now,
		})
	}
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = ExportStatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	if w.audit != nil {
		w.audit.Record(w.ctx, AuditEntry{
			ID:         newID(),
			Action:     auditActionExport,
			Actor:      w.actorFor(id),
			Refs:       w.refsFor(id),
			Status:     ExportStatusFailed,
			Metadata:   map[string]any{"error": reason},
			OccurredAt: now,
		})
	}
}

func (w *Worker) actorFor(id string) string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if record, ok := w.jobs[id]; ok {
		return record.RequestedBy
	}
	return ""
}

func (w *Worker) refsFor(id string) []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if record, ok := w.jobs[id]; ok {
		return append([]string(nil), record.Refs...)
	}
	return nil
}

type bundleEntry struct {
	Ref           string         `json:"ref"`
	Source        string         `json:"source"`
	Content       string         `json:"content"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	ContentSHA256 string         `json:"content_sha256,omitempty"`
}

type bundleDocument struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Fragments   []bundleEntry `json:"fragments"`
}

func (w *Worker) materialize(format BundleFormat, resolved []resolvedFragment) (renderedArtifact, error) {
	switch format {
	case FormatJSON:
		doc := bundleDocument{GeneratedAt: time.Now().UTC(), Fragments: make([]bundleEntry, 0, len(resolved))}
		for _, rf := range resolved {
			doc.Fragments = append(doc.Fragments, bundleEntry{
				Ref:           rf.Ref,
				Source:        rf.Fragment.Source,
				Content:       rf.Fragment.Content,
				Metadata:      rf.Fragment.Metadata,
				ContentSHA256: rf.Resolution.ContentSHA256,
			})
		}
		payload, err := json.Marshal(doc)
		if err != nil {
			return renderedArtifact{}, fmt.Errorf("marshal json: %w", err)
		}
		return renderedArtifact{
			Artifact: ExportArtifact{
				ID:          newID(),
				Format:      FormatJSON,
				ContentType: "application/json",
				SizeBytes:   int64(len(payload)),
				Metadata: map[string]any{
					"fragments": len(resolved),
				},
				CreatedAt: time.Now().UTC(),
			},
			Payload: payload,
		}, nil
	case FormatText:
		buf := &strings.Builder{}
		for i, rf := range resolved {
			if i > 0 {
				buf.WriteString("\n\n---\n\n")
			}
			buf.WriteString(rf.Fragment.Content)
		}
		buf.WriteString("\n")
		payload := []byte(buf.String())
		return renderedArtifact{
			Artifact: ExportArtifact{
				ID:          newID(),
				Format:      FormatText,
				ContentType: "text/plain; charset=utf-8",
				SizeBytes:   int64(len(payload)),
				Metadata: map[string]any{
					"fragments": len(resolved),
				},
				CreatedAt: time.Now().UTC(),
			},
			Payload: payload,
		}, nil
	case FormatCSV:
		buf := &bytes.Buffer{}
		writer := csv.NewWriter(buf)
		header := []string{"ref", "prefix", "argument", "source", "status", "content_bytes", "content_sha256", "duration_ms"}
		if err := writer.Write(header); err != nil {
			return renderedArtifact{}, err
		}
		for _, rf := range resolved {
			res := rf.Resolution
			row := []string{
				res.Ref,
				res.Prefix,
				res.Argument,
				res.Source,
				string(res.Status),
				formatValue(res.ContentBytes),
				res.ContentSHA256,
				formatValue(res.DurationMS),
			}
			if err := writer.Write(row); err != nil {
				return renderedArtifact{}, err
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return renderedArtifact{}, err
		}
		payload := buf.Bytes()
		return renderedArtifact{
			Artifact: ExportArtifact{
				ID:          newID(),
				Format:      FormatCSV,
				ContentType: "text/csv",
				SizeBytes:   int64(len(payload)),
				Metadata: map[string]any{
					"fragments": len(resolved),
				},
				CreatedAt: time.Now().UTC(),
			},
			Payload: payload,
		}, nil
	default:
		return renderedArtifact{}, fmt.Errorf("unsupported export format %s", format)
	}
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	case float32:
		return fmt.Sprintf("%g", v)
	case float64:
		return fmt.Sprintf("%g", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		return fmt.Sprint(v)
	}
}

func mergeMetadata(base map[string]any, extra map[string]any) map[string]any {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func (r ExportRecord) copy() ExportRecord {
	dup := r
	dup.Refs = append([]string(nil), r.Refs...)
	dup.Formats = append([]BundleFormat(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]ExportArtifact(nil), r.Artifacts...)
	}
	return dup
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", b[:])
}

// MemoryObjectStore is an in-memory implementation of ObjectStore for tests.
type MemoryObjectStore struct {
	mu      sync.RWMutex
	objects map[string]storedObject
}

type storedObject struct {
	artifact ExportArtifact
	payload  []byte
}

// NewMemoryObjectStore constructs an in-memory object store.
func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{objects: make(map[string]storedObject)}
}

// Put stores payload bytes and metadata under a new key.
func (s *MemoryObjectStore) Put(ctx context.Context, key string, payload []byte, contentType string, metadata map[string]any) (ExportArtifact, error) {
	now := time.Now().UTC()
	s.mu.Lock()
	if _, exists := s.objects[key]; exists {
		s.mu.Unlock()
		return ExportArtifact{}, fmt.Errorf("object %s already exists", key)
	}
	artifact := ExportArtifact{
		ID:          key,
		ContentType: contentType,
		SizeBytes:   int64(len(payload)),
		Metadata:    cloneMap(metadata),
		CreatedAt:   now,
		URL:         "memory://" + key,
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.objects[key] = storedObject{artifact: artifact, payload: cp}
	s.mu.Unlock()
	return artifact, nil
}

func (s *MemoryObjectStore) Get(ctx context.Context, key string) (ExportArtifact, []byte, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return ExportArtifact{}, nil, fmt.Errorf("object %s not found", key)
	}
	payloadCopy := make([]byte, len(obj.payload))
	copy(payloadCopy, obj.payload)
	artCopy := obj.artifact
	if artCopy.Metadata != nil {
		artCopy.Metadata = cloneMap(artCopy.Metadata)
	}
	return artCopy, payloadCopy, nil
}

func (s *MemoryObjectStore) Delete(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	_, existed := s.objects[key]
	if existed {
		delete(s.objects, key)
	}
	s.mu.Unlock()
	return existed, nil
}

func (s *MemoryObjectStore) List(ctx context.Context, prefix string) ([]ExportArtifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ExportArtifact, 0, len(s.objects))
	for key, obj := range s.objects {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			artCopy := obj.artifact
			if artCopy.Metadata != nil {
				artCopy.Metadata = cloneMap(artCopy.Metadata)
			}
			out = append(out, artCopy)
		}
	}
	return out, nil
}

// Objects returns stored artifacts for inspection in tests.
func (s *MemoryObjectStore) Objects() []ExportArtifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ExportArtifact, 0, len(s.objects))
	for _, obj := range s.objects {
		artCopy := obj.artifact
		if artCopy.Metadata != nil {
			artCopy.Metadata = cloneMap(artCopy.Metadata)
		}
		out = append(out, artCopy)
	}
	return out
}

// MemoryAuditLog captures audit entries in-memory for assertions.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Record stores an audit entry.
func (l *MemoryAuditLog) Record(ctx context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a copy of recorded audit entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
