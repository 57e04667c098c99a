// Package service contains the business logic layer.
//
// This file implements the quota gate: the single entry point that decides
// whether an identity may run a comparison right now and consumes one unit
// of today's quota if so.
package service

import (
	"context"
	"log/slog"

	"github.com/pixelproof/pixelproof/internal/domain"
	"github.com/pixelproof/pixelproof/internal/metrics"
	"github.com/pixelproof/pixelproof/internal/repository"
)

// QuotaGate combines the subscription resolver, the plan catalog, and the
// quota ledger.
type QuotaGate interface {
	// CheckAndConsume resolves the identity's entitlement, maps the plan to
	// its daily ceiling, and atomically consumes one unit if budget remains.
	//
	// Entitlement is resolved before the ledger is touched, so a de-entitled
	// identity never tests against a stale ceiling. Callers must invoke this
	// strictly before any expensive external work; a consumed unit is never
	// refunded if that work later fails.
	//
	// Failure codes: ENOCUSTOMER, ENOPLAN, ELIMIT, EUNAVAILABLE, EINTERNAL.
	CheckAndConsume(ctx context.Context, identity string) (*domain.GateResult, error)

	// Usage reports today's consumption without consuming. Identities with
	// no entitlement report a zero ceiling.
	Usage(ctx context.Context, identity string) (*domain.QuotaUsage, error)
}

type quotaGate struct {
	resolver Resolver
	quota    repository.QuotaStore
	logger   *slog.Logger
}

// NewQuotaGate creates a QuotaGate.
func NewQuotaGate(resolver Resolver, quota repository.QuotaStore, logger *slog.Logger) QuotaGate {
	return &quotaGate{
		resolver: resolver,
		quota:    quota,
		logger:   logger,
	}
}

func (g *quotaGate) CheckAndConsume(ctx context.Context, identity string) (*domain.GateResult, error) {
	const op = "quota.check_and_consume"

	ent, err := g.resolver.Resolve(ctx, identity)
	if err != nil {
		metrics.QuotaDecisions.WithLabelValues(domain.ErrorCode(err)).Inc()
		return nil, err
	}
	if !ent.HasAccess {
		metrics.QuotaDecisions.WithLabelValues(domain.ENOPLAN).Inc()
		return nil, domain.NoPlan(op)
	}

	max := domain.LimitForPlan(ent.Plan)
	if max <= 0 {
		// Entitled but the plan resolves to nothing we sell. Same user-facing
		// answer as no entitlement.
		g.logger.Warn("entitled identity resolved to zero ceiling",
			"identity", identity, "plan", ent.Plan)
		metrics.QuotaDecisions.WithLabelValues(domain.ENOPLAN).Inc()
		return nil, domain.NoPlan(op)
	}

	day := domain.TodayKey()
	used, allowed, err := g.quota.ConsumeIfUnder(ctx, identity, day, max)
	if err != nil {
		metrics.QuotaDecisions.WithLabelValues(domain.EINTERNAL).Inc()
		return nil, domain.Internal(err, op, "failed to consume quota")
	}
	if !allowed {
		g.logger.Info("daily limit reached",
			"identity", identity, "plan", ent.Plan, "used", used, "max", max)
		metrics.QuotaDecisions.WithLabelValues(domain.ELIMIT).Inc()
		return nil, domain.LimitExceeded(op, ent.Plan, max)
	}

	metrics.QuotaDecisions.WithLabelValues("allowed").Inc()
	return &domain.GateResult{
		Identity: identity,
		Plan:     ent.Plan,
		Max:      max,
		Used:     used,
	}, nil
}

func (g *quotaGate) Usage(ctx context.Context, identity string) (*domain.QuotaUsage, error) {
	const op = "quota.usage"

	day := domain.TodayKey()
	usage := &domain.QuotaUsage{Day: day}

	ent, err := g.resolver.Resolve(ctx, identity)
	switch {
	case err == nil:
		if ent.HasAccess {
			usage.Plan = ent.Plan
			usage.Max = domain.LimitForPlan(ent.Plan)
		}
	case domain.ErrorCode(err) == domain.ENOCUSTOMER:
		// Usage is a read-only view; no billing account just means zero ceiling.
	default:
		return nil, err
	}

	counter, err := g.quota.Peek(ctx, identity)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to read quota counter")
	}
	usage.Used = counter.UsedToday(day)
	return usage, nil
}
