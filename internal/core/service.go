package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"fragmentcore/pkg/domain"
	"fragmentcore/pkg/fragmentapi"
	"fragmentcore/pkg/pluginapi"
)

// Operation identifiers used for metrics, tracing, and audit entries.
const (
	opInstallPlugin   = "install_plugin"
	opResolveFragment = "resolve_fragment"
	opGetResolution   = "get_resolution"
	opListResolutions = "list_resolutions"
)

type auditOperation struct {
	entity EntityType
	action Action
}

var auditOperations = map[string]auditOperation{
	opInstallPlugin:   {entity: EntityPlugin, action: ActionCreate},
	opResolveFragment: {entity: EntityResolution, action: ActionCreate},
	opGetResolution:   {entity: EntityResolution, action: ActionRead},
	opListResolutions: {entity: EntityResolution, action: ActionRead},
}

// Service hosts fragment loader plugins and resolves prompt fragment
// references against them. Plugins are installed during startup before the
// service begins resolving.
type Service struct {
	store      PersistentStore
	engine     *RulesEngine
	clock      Clock
	now        func() time.Time
	logger     Logger
	plugins    map[string]PluginMetadata
	loaders    map[string]*fragmentapi.HostLoader
	mu         sync.RWMutex
	httpClient fragmentapi.Doer
	metrics    MetricsRecorder
	tracer     Tracer
	audit      AuditRecorder
}

// Option customizes service construction.
type Option func(*Service)

// WithLogger overrides the default no-op logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithHTTPClient overrides the HTTP client handed to plugin loaders.
func WithHTTPClient(client fragmentapi.Doer) Option {
	return func(s *Service) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithMetricsRecorder wires a metrics sink for operation outcomes.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer wires a tracer around service operations.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithAuditRecorder wires an audit sink for service operations.
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:      store,
		plugins:    make(map[string]PluginMetadata),
		loaders:    make(map[string]*fragmentapi.HostLoader),
		clock:      systemClock{},
		logger:     noopLogger{},
		httpClient: http.DefaultClient,
		metrics:    noopMetricsRecorder{},
		tracer:     noopTracer{},
		audit:      noopAuditRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = extractRulesEngine(store)
	if s.engine == nil {
		s.engine = NewRulesEngine()
	}
	s.now = selectNowFunc(store, s.clock)
	return s
}

// NewInMemoryService creates a service and in-memory store with the given
// rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(NewMemoryStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// RulesEngine exposes the engine evaluating resolved fragments.
func (s *Service) RulesEngine() *RulesEngine { return s.engine }

// Close releases the underlying store.
func (s *Service) Close() error { return s.store.Close() }

func (s *Service) environment() fragmentapi.Environment {
	return fragmentapi.Environment{
		HTTPClient: s.httpClient,
		Logger:     s.logger,
		Now:        s.now,
	}
}

// InstallPlugin registers a plugin, binding its fragment loaders and wiring
// its rules into the active engine.
func (s *Service) InstallPlugin(ctx context.Context, plugin pluginapi.Plugin) (PluginMetadata, error) {
	var meta PluginMetadata
	duration, err := s.run(ctx, opInstallPlugin, func(ctx context.Context) error {
		var err error
		meta, err = s.installPlugin(ctx, plugin)
		return err
	})
	if err != nil {
		return PluginMetadata{}, err
	}
	s.recordAuditSuccess(ctx, opInstallPlugin, meta.Name, duration)
	return meta, nil
}

func (s *Service) installPlugin(ctx context.Context, plugin pluginapi.Plugin) (PluginMetadata, error) {
	if plugin == nil {
		return PluginMetadata{}, ErrNilPlugin
	}
	name := plugin.Name()
	if name == "" {
		return PluginMetadata{}, fmt.Errorf("plugin name required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plugins[name]; ok {
		return PluginMetadata{}, fmt.Errorf("%w: %s", ErrDuplicatePlugin, name)
	}

	registry := NewPluginRegistry()
	if err := plugin.Register(registry); err != nil {
		return PluginMetadata{}, fmt.Errorf("register plugin %s: %w", name, err)
	}

	meta := PluginMetadata{
		Name:       name,
		Version:    plugin.Version(),
		APIVersion: pluginapi.Version,
	}

	// Bind every loader before mutating service state so a conflicting or
	// broken template leaves nothing half installed.
	env := s.environment()
	bound := make(map[string]*fragmentapi.HostLoader)
	for _, template := range registry.FragmentLoaders() {
		loader, err := fragmentapi.NewHostLoader(name, template)
		if err != nil {
			return PluginMetadata{}, fmt.Errorf("plugin %s: %w", name, err)
		}
		if _, exists := s.loaders[loader.Prefix()]; exists {
			return PluginMetadata{}, fmt.Errorf("%w: %s", ErrDuplicateLoader, loader.Prefix())
		}
		if _, exists := bound[loader.Prefix()]; exists {
			return PluginMetadata{}, fmt.Errorf("%w: %s", ErrDuplicateLoader, loader.Prefix())
		}
		if err := loader.Bind(env); err != nil {
			return PluginMetadata{}, fmt.Errorf("bind loader %s: %w", loader.Slug(), err)
		}
		bound[loader.Prefix()] = loader
		meta.Loaders = append(meta.Loaders, loader.Descriptor())
	}

	for _, rule := range registry.Rules() {
		s.engine.Register(rule)
		meta.Rules = append(meta.Rules, rule.Name())
	}

	record := domain.PluginRecord{
		Name:       meta.Name,
		Version:    meta.Version,
		APIVersion: meta.APIVersion,
		Rules:      append([]string(nil), meta.Rules...),
	}
	for _, descriptor := range meta.Loaders {
		record.Loaders = append(record.Loaders, descriptor.Slug)
	}
	if _, err := s.store.PutPluginRecord(ctx, record); err != nil {
		return PluginMetadata{}, fmt.Errorf("persist plugin record: %w", err)
	}

	for prefix, loader := range bound {
		s.loaders[prefix] = loader
	}
	s.plugins[name] = meta
	s.logger.Info("plugin installed",
		"plugin", meta.Name,
		"version", meta.Version,
		"loaders", len(meta.Loaders),
		"rules", len(meta.Rules),
	)
	return clonePluginMetadata(meta), nil
}

// ResolveFragment parses a prompt fragment reference, delegates it to the
// loader registered for its prefix, evaluates resolution rules against the
// produced fragment, and appends an entry to the resolution log.
func (s *Service) ResolveFragment(ctx context.Context, ref string) (fragmentapi.Fragment, Resolution, error) {
	var fragment fragmentapi.Fragment
	var resolution Resolution
	duration, err := s.run(ctx, opResolveFragment, func(ctx context.Context) error {
		var err error
		fragment, resolution, err = s.resolveFragment(ctx, ref)
		return err
	})
	if err != nil {
		return fragment, resolution, err
	}
	s.recordAuditSuccess(ctx, opResolveFragment, resolution.ID, duration)
	return fragment, resolution, nil
}

func (s *Service) resolveFragment(ctx context.Context, ref string) (fragmentapi.Fragment, Resolution, error) {
	req, err := fragmentapi.ParseRef(ref)
	if err != nil {
		return fragmentapi.Fragment{}, Resolution{}, err
	}

	s.mu.RLock()
	loader, ok := s.loaders[req.Prefix]
	s.mu.RUnlock()
	if !ok {
		return fragmentapi.Fragment{}, Resolution{}, fmt.Errorf("%w: %s", ErrUnknownPrefix, req.Prefix)
	}

	started := s.now()
	fragment, runErr := loader.Resolve(ctx, req)
	completed := s.now()

	resolution := Resolution{
		Ref:         req.Ref,
		Prefix:      req.Prefix,
		Argument:    req.Argument,
		Plugin:      loader.Plugin(),
		Loader:      loader.Slug(),
		StartedAt:   started,
		CompletedAt: completed,
		DurationMS:  completed.Sub(started).Milliseconds(),
	}

	if runErr != nil {
		resolution.Status = ResolutionFailed
		resolution.Error = runErr.Error()
		return fragmentapi.Fragment{}, s.appendResolution(ctx, resolution), runErr
	}

	resolution.Status = ResolutionSucceeded
	resolution.Source = fragment.Source
	resolution.ContentBytes = len(fragment.Content)
	digest := sha256.Sum256([]byte(fragment.Content))
	resolution.ContentSHA256 = hex.EncodeToString(digest[:])

	s.mu.RLock()
	result, ruleErr := s.engine.Evaluate(ctx, RuleContext{
		Ref:      req.Ref,
		Prefix:   req.Prefix,
		Argument: req.Argument,
		Source:   fragment.Source,
		Content:  fragment.Content,
		Metadata: fragment.Metadata,
	})
	s.mu.RUnlock()
	if ruleErr != nil {
		resolution.Status = ResolutionFailed
		resolution.Error = ruleErr.Error()
		return fragmentapi.Fragment{}, s.appendResolution(ctx, resolution), fmt.Errorf("evaluate rules: %w", ruleErr)
	}

	resolution.Violations = result.Violations
	if result.HasBlocking() {
		violation := RuleViolationError{Result: result}
		resolution.Status = ResolutionFailed
		resolution.Error = violation.Error()
		return fragmentapi.Fragment{}, s.appendResolution(ctx, resolution), violation
	}

	appended, appendErr := s.store.AppendResolution(ctx, resolution)
	if appendErr != nil {
		return fragment, resolution, fmt.Errorf("record resolution: %w", appendErr)
	}
	return fragment, appended, nil
}

// appendResolution records a failed resolution without masking the error the
// caller is about to surface.
func (s *Service) appendResolution(ctx context.Context, resolution Resolution) Resolution {
	appended, err := s.store.AppendResolution(ctx, resolution)
	if err != nil {
		s.logger.Warn("record resolution", "ref", resolution.Ref, "error", err)
		return resolution
	}
	return appended
}

// GetResolution fetches a single resolution log entry by ID.
func (s *Service) GetResolution(ctx context.Context, id string) (Resolution, bool, error) {
	var resolution Resolution
	var found bool
	duration, err := s.run(ctx, opGetResolution, func(ctx context.Context) error {
		var err error
		resolution, found, err = s.store.GetResolution(ctx, id)
		return err
	})
	if err != nil {
		return Resolution{}, false, err
	}
	s.recordAuditSuccess(ctx, opGetResolution, id, duration)
	return resolution, found, nil
}

// ListResolutions returns the resolution log ordered oldest first.
func (s *Service) ListResolutions(ctx context.Context) ([]Resolution, error) {
	var resolutions []Resolution
	duration, err := s.run(ctx, opListResolutions, func(ctx context.Context) error {
		var err error
		resolutions, err = s.store.ListResolutions(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordAuditSuccess(ctx, opListResolutions, "", duration)
	return resolutions, nil
}

// ListFragmentLoaders returns descriptors for every installed loader ordered
// by plugin, prefix, and version.
func (s *Service) ListFragmentLoaders() []fragmentapi.LoaderDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]fragmentapi.LoaderDescriptor, 0, len(s.loaders))
	for _, loader := range s.loaders {
		out = append(out, loader.Descriptor())
	}
	fragmentapi.SortLoaderDescriptors(out)
	return out
}

// ResolveFragmentLoader returns the bound loader serving the given prefix.
func (s *Service) ResolveFragmentLoader(prefix string) (*fragmentapi.HostLoader, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loader, ok := s.loaders[prefix]
	if !ok {
		return nil, false
	}
	return loader, true
}

// ListPlugins returns metadata describing installed plugins ordered by name.
func (s *Service) ListPlugins() []PluginMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PluginMetadata, 0, len(s.plugins))
	for _, meta := range s.plugins {
		out = append(out, clonePluginMetadata(meta))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// run wraps an operation with tracing, metrics, and error logging.
func (s *Service) run(ctx context.Context, operation string, fn func(ctx context.Context) error) (time.Duration, error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, operation)
	err := fn(ctx)
	duration := s.now().Sub(start)
	s.metrics.Observe(ctx, operation, err == nil, duration)
	span.End(err)
	if err != nil {
		s.logger.Error("operation failed", "operation", operation, "error", err)
		s.recordAuditError(ctx, operation, duration)
		return duration, err
	}
	s.logger.Debug("operation completed", "operation", operation, "duration_ms", duration.Milliseconds())
	return duration, nil
}

func (s *Service) recordAuditSuccess(ctx context.Context, operation, entityID string, duration time.Duration) {
	s.recordAudit(ctx, operation, entityID, AuditStatusSuccess, duration)
}

func (s *Service) recordAuditError(ctx context.Context, operation string, duration time.Duration) {
	s.recordAudit(ctx, operation, "", AuditStatusError, duration)
}

func (s *Service) recordAudit(ctx context.Context, operation, entityID string, status AuditStatus, duration time.Duration) {
	meta, ok := auditOperations[operation]
	if !ok {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Operation: operation,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Status:    status,
		Duration:  duration,
		Timestamp: s.now(),
	})
}

func clonePluginMetadata(meta PluginMetadata) PluginMetadata {
	cloned := meta
	if len(meta.Loaders) > 0 {
		cloned.Loaders = append([]fragmentapi.LoaderDescriptor(nil), meta.Loaders...)
	}
	if len(meta.Rules) > 0 {
		cloned.Rules = append([]string(nil), meta.Rules...)
	}
	return cloned
}
