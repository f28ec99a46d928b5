// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package recon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/platerecon/pkg/validation"
	"github.com/AleutianAI/platerecon/services/recon/cache"
	"github.com/AleutianAI/platerecon/services/recon/graph"
	"github.com/AleutianAI/platerecon/services/recon/rotation"
	"github.com/AleutianAI/platerecon/services/recon/rotfile"
	badgerstore "github.com/AleutianAI/platerecon/services/recon/storage/badger"
)

// ServiceVersion is the reconstruction service version.
const ServiceVersion = "0.1.0"

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// DefaultModel is used when a request names no model. When empty and
	// exactly one model is loaded, that model is used.
	DefaultModel string

	// DefaultAnchor is used when a request names no anchor plate.
	DefaultAnchor graph.PlateID

	// MaxEdges caps each graph. 0 uses graph.DefaultMaxEdges.
	MaxEdges int

	// GraphCapacity and TreeCapacity bound the caches.
	GraphCapacity int
	TreeCapacity  int

	// LoadConcurrency bounds parallel file loads in LoadModels.
	LoadConcurrency int
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxEdges:        graph.DefaultMaxEdges,
		GraphCapacity:   32,
		TreeCapacity:    256,
		LoadConcurrency: 4,
	}
}

// ServiceOption configures optional collaborators.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPoleStore enables persistence of loaded models.
func WithPoleStore(store *badgerstore.PoleStore) ServiceOption {
	return func(s *Service) {
		s.store = store
	}
}

// ModelFile names a rotation file to load.
type ModelFile struct {
	Name string
	Path string
}

type loadedModel struct {
	model *rotfile.Model
	info  ModelInfo
}

// Service owns loaded rotation models and reconstructs geometry with them.
//
// Thread Safety: Safe for concurrent use.
type Service struct {
	mu     sync.RWMutex
	models map[string]*loadedModel

	config ServiceConfig
	cache  *cache.TreeCache
	store  *badgerstore.PoleStore
	logger *slog.Logger
}

// NewService creates a Service with no models loaded.
func NewService(cfg ServiceConfig, opts ...ServiceOption) *Service {
	if cfg.MaxEdges <= 0 {
		cfg.MaxEdges = graph.DefaultMaxEdges
	}
	if cfg.LoadConcurrency <= 0 {
		cfg.LoadConcurrency = 1
	}
	s := &Service{
		models: make(map[string]*loadedModel),
		config: cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cache = cache.NewTreeCache(
		cache.WithGraphCapacity(cfg.GraphCapacity),
		cache.WithTreeCapacity(cfg.TreeCapacity),
		cache.WithLogger(s.logger),
	)
	return s
}

// =============================================================================
// Model management
// =============================================================================

// LoadModelFile parses a rotation file and makes it available as name.
//
// Description:
//
//	Malformed lines are skipped and logged; the count is reported in
//	ModelInfo.ParseErrors. A file with no usable samples is rejected with
//	rotfile.ErrEmptyModel. With a pole store configured the model is also
//	saved under name.
//
// Outputs:
//
//	ModelInfo - Description of the loaded model.
//	error - Non-nil if name is invalid, or the file could not be read or
//	yielded no samples.
func (s *Service) LoadModelFile(ctx context.Context, name, path string) (ModelInfo, error) {
	if err := validation.ValidateModelName(name); err != nil {
		return ModelInfo{}, fmt.Errorf("load model: %w", err)
	}
	model, parseErrs, err := rotfile.ParseFile(path)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("load model %q: %w", name, err)
	}
	for _, pe := range parseErrs {
		s.logger.Warn("skipped rotation line",
			slog.String("model", name),
			slog.String("error", pe.Error()))
	}
	if model.SampleCount() == 0 {
		return ModelInfo{}, fmt.Errorf("load model %q from %s: %w", name, path, rotfile.ErrEmptyModel)
	}

	info := s.install(name, path, model, len(parseErrs))

	if s.store != nil {
		if _, err := s.store.SaveModel(ctx, name, model); err != nil {
			return info, fmt.Errorf("persist model %q: %w", name, err)
		}
	}
	return info, nil
}

// LoadModels loads several files concurrently. The first error cancels
// the remaining loads; models already loaded stay loaded.
func (s *Service) LoadModels(ctx context.Context, files []ModelFile) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.LoadConcurrency)
	for _, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := s.LoadModelFile(ctx, f.Name, f.Path)
			return err
		})
	}
	return g.Wait()
}

// LoadStoredModels makes every model in the pole store available.
// Models already loaded under the same name are replaced.
func (s *Service) LoadStoredModels(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, ErrStoreDisabled
	}
	stored, err := s.store.ListModels(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stored models: %w", err)
	}
	for _, mi := range stored {
		model, err := s.store.LoadModel(ctx, mi.Name)
		if err != nil {
			return 0, fmt.Errorf("load stored model %q: %w", mi.Name, err)
		}
		s.install(mi.Name, "", model, 0)
	}
	return len(stored), nil
}

// UseModel makes an already parsed model available as name, replacing
// any model of that name and dropping its cached trees.
func (s *Service) UseModel(name string, model *rotfile.Model) ModelInfo {
	return s.install(name, "", model, 0)
}

func (s *Service) install(name, path string, model *rotfile.Model, parseErrors int) ModelInfo {
	info := ModelInfo{
		Name:        name,
		Source:      model.Source(),
		Path:        path,
		Samples:     model.SampleCount(),
		Sequences:   model.SequenceCount(),
		Times:       len(model.Times()),
		ParseErrors: parseErrors,
		LoadedAt:    time.Now().UTC(),
		LoadID:      uuid.NewString(),
	}

	s.mu.Lock()
	_, replaced := s.models[name]
	s.models[name] = &loadedModel{model: model, info: info}
	s.mu.Unlock()

	if replaced {
		s.cache.Invalidate(name)
	}
	s.logger.Info("model loaded",
		slog.String("model", name),
		slog.String("source", info.Source),
		slog.Int("samples", info.Samples),
		slog.Bool("replaced", replaced))
	return info
}

// RemoveModel unloads name and drops its cached trees.
func (s *Service) RemoveModel(name string) error {
	s.mu.Lock()
	_, ok := s.models[name]
	delete(s.models, name)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrModelNotLoaded, name)
	}
	s.cache.Invalidate(name)
	return nil
}

// Models returns the loaded models sorted by name.
func (s *Service) Models() []ModelInfo {
	s.mu.RLock()
	out := make([]ModelInfo, 0, len(s.models))
	for _, m := range s.models {
		out = append(out, m.info)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DefaultModel returns the model name used when a request names none.
func (s *Service) DefaultModel() string {
	name, _ := s.resolveName("")
	return name
}

// Times returns the distinct sample times of a model.
func (s *Service) Times(name string) ([]float64, error) {
	m, _, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	return m.Times(), nil
}

// CacheStats returns the tree cache counters.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

func (s *Service) resolveName(name string) (string, bool) {
	if name != "" {
		return name, true
	}
	if s.config.DefaultModel != "" {
		return s.config.DefaultModel, true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.models) == 1 {
		for n := range s.models {
			return n, true
		}
	}
	return "", false
}

func (s *Service) lookup(name string) (*rotfile.Model, string, error) {
	resolved, ok := s.resolveName(name)
	if !ok {
		return nil, "", fmt.Errorf("%w: no model named and no default", ErrModelNotLoaded)
	}
	s.mu.RLock()
	m, ok := s.models[resolved]
	s.mu.RUnlock()
	if !ok {
		return nil, resolved, fmt.Errorf("%w: %q", ErrModelNotLoaded, resolved)
	}
	return m.model, resolved, nil
}

// =============================================================================
// Reconstruction
// =============================================================================

// Tree returns the built tree for a model at a time, anchored at anchor.
//
// Description:
//
//	Trees are cached per (model, time, anchor). The graph for (model,
//	time) is loaded from the model's poles at exactly that time.
func (s *Service) Tree(ctx context.Context, model string, t float64, anchor graph.PlateID) (*graph.Tree, string, error) {
	if err := validateTime(t); err != nil {
		return nil, "", err
	}
	_, name, err := s.lookup(model)
	if err != nil {
		return nil, "", err
	}
	key := cache.TreeKey{Model: name, Time: t, Root: anchor}
	tree, err := s.cache.GetOrBuild(ctx, key, s.loadGraph)
	if err != nil {
		return nil, name, err
	}
	return tree, name, nil
}

// loadGraph resolves the model at load time so a reload is picked up by
// the next cache miss.
func (s *Service) loadGraph(ctx context.Context, key cache.GraphKey) (*graph.Graph, error) {
	m, _, err := s.lookup(key.Model)
	if err != nil {
		return nil, err
	}
	return rotfile.LoadGraph(ctx, m, key.Time,
		graph.WithMaxEdges(s.config.MaxEdges),
		graph.WithLogger(s.logger.With(slog.String("model", key.Model))))
}

func (s *Service) anchorOr(anchor *uint32) graph.PlateID {
	if anchor == nil {
		return s.config.DefaultAnchor
	}
	return graph.PlateID(*anchor)
}

// ReconstructPoint rotates a present-day point on plate to its position
// at req.Time relative to the anchor.
//
// Outputs:
//
//	*PointResponse - Found is false when the plate is unreachable.
//	error - ErrModelNotLoaded, ErrInvalidTime, or a coordinate or build
//	        error.
func (s *Service) ReconstructPoint(ctx context.Context, req PointRequest) (*PointResponse, error) {
	p, err := rotation.FromLatLon(req.Point.Lat, req.Point.Lon)
	if err != nil {
		return nil, err
	}
	anchor := s.anchorOr(req.Anchor)
	tree, name, err := s.Tree(ctx, req.Model, req.Time, anchor)
	if err != nil {
		return nil, err
	}

	resp := &PointResponse{Model: name, Time: req.Time, Plate: req.Plate, Anchor: uint32(anchor)}
	rot, found, err := tree.CompositeRotation(graph.PlateID(req.Plate), anchor)
	if err != nil {
		return nil, err
	}
	if !found {
		s.logger.Debug("plate not reachable",
			slog.String("model", name),
			slog.Float64("time", req.Time),
			slog.Uint64("plate", uint64(req.Plate)),
			slog.Uint64("anchor", uint64(anchor)))
		return resp, nil
	}

	lat, lon := rot.Apply(p).LatLon()
	resp.Found = true
	resp.Point = &LatLon{Lat: lat, Lon: lon}
	resp.Rotation = eulerPole(rot)
	return resp, nil
}

// ReconstructPolyline rotates every vertex of a present-day polyline.
func (s *Service) ReconstructPolyline(ctx context.Context, req PolylineRequest) (*PolylineResponse, error) {
	pts := make([]rotation.PointOnSphere, len(req.Points))
	for i, ll := range req.Points {
		p, err := rotation.FromLatLon(ll.Lat, ll.Lon)
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		pts[i] = p
	}
	line, err := rotation.NewPolyline(pts...)
	if err != nil {
		return nil, err
	}

	anchor := s.anchorOr(req.Anchor)
	tree, name, err := s.Tree(ctx, req.Model, req.Time, anchor)
	if err != nil {
		return nil, err
	}

	resp := &PolylineResponse{Model: name, Time: req.Time, Plate: req.Plate, Anchor: uint32(anchor)}
	rot, found, err := tree.CompositeRotation(graph.PlateID(req.Plate), anchor)
	if err != nil {
		return nil, err
	}
	if !found {
		return resp, nil
	}

	moved := rot.ApplyPolyline(line)
	resp.Found = true
	resp.Points = make([]LatLon, moved.Len())
	for i := 0; i < moved.Len(); i++ {
		lat, lon := moved.At(i).LatLon()
		resp.Points[i] = LatLon{Lat: lat, Lon: lon}
	}
	resp.Rotation = eulerPole(rot)
	return resp, nil
}

// TreeSummary describes the tree for a model at a time.
//
// Description:
//
//	Lists the rootmost edges, the reachable plates, the build statistics
//	and cross-over diagnostics. With plate set, the chain of edges from
//	the anchor down to plate is included; an unreachable plate is
//	ErrPlateNotFound.
func (s *Service) TreeSummary(ctx context.Context, req TreeRequest) (*TreeResponse, error) {
	anchor := s.anchorOr(req.Anchor)
	tree, name, err := s.Tree(ctx, req.Model, req.Time, anchor)
	if err != nil {
		return nil, err
	}

	rootmost, err := tree.RootmostEdges()
	if err != nil {
		return nil, err
	}
	plates, err := tree.ReachablePlates()
	if err != nil {
		return nil, err
	}
	report, err := tree.Report()
	if err != nil {
		return nil, err
	}

	resp := &TreeResponse{
		Model:       name,
		Time:        req.Time,
		Anchor:      uint32(anchor),
		Poles:       tree.Graph().PoleCount(),
		Plates:      make([]uint32, len(plates)),
		Rootmost:    treeNodes(rootmost),
		Stats:       report.Stats,
		Diagnostics: report.Diagnostics,
	}
	for i, p := range plates {
		resp.Plates[i] = uint32(p)
	}

	if req.Plate != nil && graph.PlateID(*req.Plate) != anchor {
		path, err := tree.PathToRoot(graph.PlateID(*req.Plate))
		if err != nil {
			return nil, err
		}
		if len(path) == 0 {
			return nil, fmt.Errorf("%w: plate %d, anchor %d at %v Ma",
				ErrPlateNotFound, *req.Plate, anchor, req.Time)
		}
		resp.Path = treeNodes(path)
	}
	return resp, nil
}

func validateTime(t float64) error {
	if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidTime, t)
	}
	return nil
}

func eulerPole(r rotation.Rotation) *EulerPole {
	pole, angle := r.EulerPole()
	lat, lon := pole.LatLon()
	return &EulerPole{Lat: lat, Lon: lon, Angle: angle}
}

func treeNodes(edges []graph.TreeEdge) []TreeNode {
	out := make([]TreeNode, len(edges))
	for i, e := range edges {
		out[i] = TreeNode{
			Edge:        e.Index,
			FixedPlate:  uint32(e.FixedPlate),
			MovingPlate: uint32(e.MovingPlate),
			Parent:      e.Parent,
			Depth:       e.Depth,
			Reversed:    e.Kind == graph.EdgeKindReversed,
			Composed:    *eulerPole(e.Composed),
		}
		if !e.Provenance.IsZero() {
			out[i].Source = e.Provenance.String()
		}
	}
	return out
}

// isClientError reports whether err was caused by the request.
func isClientError(err error) bool {
	return errors.Is(err, ErrInvalidTime) ||
		errors.Is(err, rotfile.ErrInvalidTime) ||
		errors.Is(err, rotation.ErrInvalidLatitude) ||
		errors.Is(err, rotation.ErrInvalidLongitude) ||
		errors.Is(err, rotation.ErrTooFewPoints)
}
