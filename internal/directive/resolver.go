package directive

import (
	"context"
	"fmt"

	"github.com/HendryAvila/ctxkeeper/internal/ctxerr"
	"github.com/HendryAvila/ctxkeeper/internal/heuristics"
	"go.uber.org/zap"
)

// Decision is the tier chosen for one call, with the reason it was chosen.
// It is computed per call and never persisted.
type Decision struct {
	Tier   Tier   `json:"tier"`
	Reason string `json:"reason"`
}

// Resolution is the content served for a directive key.
type Resolution struct {
	Key     string `json:"key"`
	Tier    Tier   `json:"tier"`
	Content string `json:"content"`
	Reason  string `json:"reason"`
}

// Resolver decides which tier a directive request needs and loads it.
type Resolver struct {
	store  Store
	tables heuristics.DirectiveTables
	logger *zap.Logger
}

// NewResolver creates a Resolver over store using the given lookup tables.
func NewResolver(store Store, tables heuristics.DirectiveTables, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, tables: tables, logger: logger}
}

// Store returns the underlying directive store.
func (r *Resolver) Store() Store { return r.store }

// Decide picks a tier for key given the caller's situational context.
//
// Order of checks: the always-escalate list, an embedded marker anywhere in
// the compact entry, then the force-detailed and force-standard keyword
// sets. Compact is the default. Unknown keys are NotFound.
func (r *Resolver) Decide(ctx context.Context, key, situational string) (Decision, error) {
	if r.tables.IsAlwaysEscalate(key) {
		return Decision{Tier: TierStandard, Reason: fmt.Sprintf("key %q is on the always-escalate list", key)}, nil
	}

	entry, err := r.store.Compact(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	if path, ok := entry.FindMarker(r.tables); ok {
		return Decision{Tier: TierStandard, Reason: "compact entry marks richer content at " + path}, nil
	}

	if kw := heuristics.FirstMatch(situational, r.tables.ForceDetailed); kw != "" {
		return Decision{Tier: TierDetailed, Reason: fmt.Sprintf("situational context mentions %q", kw)}, nil
	}
	if kw := heuristics.FirstMatch(situational, r.tables.ForceStandard); kw != "" {
		return Decision{Tier: TierStandard, Reason: fmt.Sprintf("situational context mentions %q", kw)}, nil
	}
	return Decision{Tier: TierCompact, Reason: "compact tier is sufficient"}, nil
}

// Resolve returns the content for key. A non-empty force tier skips the
// decision. A chosen richer tier that is missing on disk falls back to the
// other richer tier; NotFound is returned only when neither exists.
func (r *Resolver) Resolve(ctx context.Context, key, situational string, force Tier) (*Resolution, error) {
	var decision Decision
	if force != "" {
		if force.Rank() < 0 {
			return nil, fmt.Errorf("invalid tier %q", force)
		}
		if _, err := r.store.Compact(ctx, key); err != nil {
			return nil, err
		}
		decision = Decision{Tier: force, Reason: fmt.Sprintf("tier %s forced by caller", force)}
	} else {
		d, err := r.Decide(ctx, key, situational)
		if err != nil {
			return nil, err
		}
		decision = d
	}

	switch decision.Tier {
	case TierStandard:
		return r.loadRicher(ctx, key, TierStandard, TierDetailed, decision.Reason)
	case TierDetailed:
		return r.loadRicher(ctx, key, TierDetailed, TierStandard, decision.Reason)
	default:
		return r.compact(ctx, key, decision.Reason)
	}
}

// Escalate serves the next tier after compact: standard, or detailed when
// the standard document is missing.
func (r *Resolver) Escalate(ctx context.Context, key string) (*Resolution, error) {
	return r.loadRicher(ctx, key, TierStandard, TierDetailed, "escalated from compact")
}

// EscalateFurther serves the detailed tier, or standard when the detailed
// document is missing.
func (r *Resolver) EscalateFurther(ctx context.Context, key string) (*Resolution, error) {
	return r.loadRicher(ctx, key, TierDetailed, TierStandard, "escalated from standard")
}

// EscalateFrom moves one step up from the tier the caller already tried.
// Detailed is terminal: asking to escalate from it serves detailed again.
// The returned tier is never below from.
func (r *Resolver) EscalateFrom(ctx context.Context, key string, from Tier) (*Resolution, error) {
	switch from {
	case TierCompact, "":
		return r.Escalate(ctx, key)
	case TierStandard:
		return r.EscalateFurther(ctx, key)
	case TierDetailed:
		content, err := r.store.Detailed(ctx, key)
		if err != nil {
			return nil, err
		}
		return &Resolution{Key: key, Tier: TierDetailed, Content: content, Reason: "detailed tier is terminal"}, nil
	default:
		return nil, fmt.Errorf("invalid tier %q", from)
	}
}

func (r *Resolver) compact(ctx context.Context, key, reason string) (*Resolution, error) {
	entry, err := r.store.Compact(ctx, key)
	if err != nil {
		return nil, err
	}
	return &Resolution{Key: key, Tier: TierCompact, Content: entry.Pretty(), Reason: reason}, nil
}

func (r *Resolver) loadRicher(ctx context.Context, key string, want, fallback Tier, reason string) (*Resolution, error) {
	content, err := r.load(ctx, key, want)
	if err == nil {
		return &Resolution{Key: key, Tier: want, Content: content, Reason: reason}, nil
	}
	if !ctxerr.Is(err, ctxerr.KindNotFound) {
		return nil, err
	}

	r.logger.Info("directive tier missing, falling back",
		zap.String("key", key), zap.String("wanted", string(want)), zap.String("fallback", string(fallback)))
	content, ferr := r.load(ctx, key, fallback)
	if ferr != nil {
		if ctxerr.Is(ferr, ctxerr.KindNotFound) {
			return nil, ctxerr.NotFound("directive "+key, fmt.Errorf("neither %s nor %s tier exists", want, fallback))
		}
		return nil, ferr
	}
	return &Resolution{
		Key:     key,
		Tier:    fallback,
		Content: content,
		Reason:  fmt.Sprintf("%s (%s tier missing, served %s)", reason, want, fallback),
	}, nil
}

func (r *Resolver) load(ctx context.Context, key string, tier Tier) (string, error) {
	if tier == TierDetailed {
		return r.store.Detailed(ctx, key)
	}
	return r.store.Standard(ctx, key)
}
