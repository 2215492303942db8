// Package service wires the ingestion pipeline, admission and operator
// actions on top of the injected stores and broker primitives.
package service

import (
	"github.com/runlab/orchestrator/internal/config"
	"github.com/runlab/orchestrator/internal/dispatch"
	"github.com/runlab/orchestrator/internal/hub"
	"github.com/runlab/orchestrator/internal/idempotency"
	"github.com/runlab/orchestrator/internal/ledger"
	"github.com/runlab/orchestrator/internal/limiter"
	"github.com/runlab/orchestrator/internal/policy"
	"github.com/runlab/orchestrator/internal/store"
)

// Service holds the injected collaborators. There is no hidden global
// state: everything is constructed once at process start.
type Service struct {
	store   store.Store
	ledger  ledger.Ledger
	cache   idempotency.Cache
	limiter limiter.Limiter
	queue   dispatch.Queue
	policy  *policy.Engine
	hub     *hub.Hub
	config  *config.Config
}

// Hub returns the watcher hub, or nil when no watch endpoint is served.
func (s *Service) Hub() *hub.Hub {
	return s.hub
}

// New creates a new service. The hub may be nil when no watch endpoint is
// served.
func New(st store.Store, lg ledger.Ledger, cache idempotency.Cache, lim limiter.Limiter, queue dispatch.Queue, pol *policy.Engine, h *hub.Hub, cfg *config.Config) *Service {
	return &Service{
		store:   st,
		ledger:  lg,
		cache:   cache,
		limiter: lim,
		queue:   queue,
		policy:  pol,
		hub:     h,
		config:  cfg,
	}
}
