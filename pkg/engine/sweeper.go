package engine

import (
	"context"
	"time"

	"github.com/agentstate/agentstate/pkg/log"
)

// runSweeper periodically turns TTL-expired objects into real delete
// commits and evicts idempotency entries past their retention window.
// It runs until sweepStop is closed, then signals sweepDone.
func (e *Engine) runSweeper() {
	defer close(e.sweepDone)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.sweepOnce()
		case <-e.sweepStop:
			return
		}
	}
}

func (e *Engine) sweepOnce() {
	now := time.Now()
	for _, ns := range e.heap.Namespaces() {
		for _, candidate := range e.heap.Sweep(ns, now.Unix()) {
			err := e.Delete(context.Background(), DeleteRequest{Namespace: candidate.Namespace, ID: candidate.ID})
			if err != nil && !e.degraded.Load() {
				log.WithNamespace(candidate.Namespace).Warn().Err(err).Str("id", candidate.ID).Msg("engine: ttl sweep delete failed")
			}
		}
	}
	e.idem.Sweep(now)
}
