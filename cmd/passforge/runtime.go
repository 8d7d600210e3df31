package main

import (
	"fmt"
	"io"

	"passforge/internal/card"
	"passforge/internal/config"
	"passforge/internal/encoder"
	"passforge/internal/orchestrator"
	"passforge/internal/store"
	"passforge/internal/verification"

	"go.uber.org/zap"
)

// datastore is the combined interface both store implementations satisfy.
type datastore interface {
	card.Datastore
	store.ArtifactStore
	store.ResultLog
	store.CardLister
	store.Writer
}

// runtime wires the pipeline components for one CLI invocation.
type runtime struct {
	store    datastore
	builder  *card.Builder
	encoder  *encoder.Encoder
	orch     *orchestrator.Orchestrator
	verifier *verification.Engine
	closers  []io.Closer
}

func newRuntime(cfg *config.Config, log *zap.Logger) (*runtime, error) {
	rt := &runtime{}

	if cfg.Store.DatabasePath == "" {
		log.Info("no database path configured, using in-memory store")
		rt.store = store.NewMemoryStore()
	} else {
		s, err := store.NewSQLiteStore(cfg.Store.DatabasePath, log.Named("store"))
		if err != nil {
			return nil, err
		}
		rt.store = s
		rt.closers = append(rt.closers, s)
	}

	rt.builder = card.NewBuilder(rt.store, log.Named("card"))
	rt.encoder = encoder.New(encoder.Credentials{
		AppleTeamID:     cfg.Credentials.AppleTeamID,
		ApplePassTypeID: cfg.Credentials.ApplePassTypeID,
		GoogleIssuerID:  cfg.Credentials.GoogleIssuerID,
		GoogleClassID:   cfg.Credentials.GoogleClassID,
	})

	timeout, err := cfg.RequestTimeout()
	if err != nil {
		return nil, err
	}
	baseDelay, err := cfg.RetryBaseDelay()
	if err != nil {
		return nil, err
	}
	rt.orch = orchestrator.New(orchestrator.Config{
		MaxConcurrent:      cfg.Queue.MaxConcurrent,
		CompletedRetention: cfg.Queue.CompletedRetention,
		FailedRetention:    cfg.Queue.FailedRetention,
		RequestTimeout:     timeout,
		Retry: orchestrator.RetryPolicy{
			MaxAttempts: cfg.Queue.RetryAttempts,
			BaseDelay:   baseDelay,
		},
	}, rt.builder, rt.encoder, rt.store, rt.store, log.Named("queue"))

	rt.verifier = verification.NewEngine(rt.builder, rt.encoder, rt.orch, log.Named("verify"))
	return rt, nil
}

func (rt *runtime) close() {
	rt.orch.Close()
	for _, c := range rt.closers {
		if err := c.Close(); err != nil {
			fmt.Fprintf(rootCmd.ErrOrStderr(), "close: %v\n", err)
		}
	}
}
