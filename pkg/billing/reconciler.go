package billing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/voicequote/meterd/pkg/accounts"
	"github.com/voicequote/meterd/pkg/observability"
)

// Webhook outcomes recorded in metrics
const (
	OutcomeApplied   = "applied"
	OutcomeIgnored   = "ignored"
	OutcomeNoAccount = "no_account"
	OutcomeError     = "error"
)

// Reconciler applies verified webhook events to account plans
type Reconciler struct {
	store   accounts.Store
	mappers map[Provider]PlanMapper
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewReconciler creates a reconciler. mappers holds the business id of
// each provider.
func NewReconciler(store accounts.Store, mappers map[Provider]PlanMapper, logger *observability.Logger, metrics *observability.Metrics) *Reconciler {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Reconciler{
		store:   store,
		mappers: mappers,
		logger:  logger.WithComponent("reconciler"),
		metrics: metrics,
	}
}

// Apply sets the plan an event implies. Events without an email, events of
// no interest and events for unknown accounts are logged and dropped.
func (r *Reconciler) Apply(ctx context.Context, ev Event) error {
	ctx, span := observability.Tracer().Start(ctx, "billing.reconcile",
		trace.WithAttributes(
			attribute.String("billing.provider", string(ev.Provider)),
			attribute.String("billing.event_type", ev.Type),
			attribute.String("billing.category", string(ev.Category)),
		),
	)
	defer span.End()

	outcome, err := r.apply(ctx, ev)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("billing.outcome", outcome))
	r.metrics.RecordWebhook(string(ev.Provider), string(ev.Category), outcome)
	return err
}

func (r *Reconciler) apply(ctx context.Context, ev Event) (string, error) {
	log := r.logger.WithFields(map[string]interface{}{
		"provider":    ev.Provider,
		"event_type":  ev.Type,
		"resource_id": ev.ResourceID,
	})

	var plan accounts.Plan
	switch ev.Category {
	case CategoryActivated:
		plan = r.mappers[ev.Provider].Map(ev.PlanID)
	case CategoryCancelled:
		plan = accounts.PlanFree
	case CategoryOrder:
		log.WithField("email", ev.Email).Info("Order completed")
		return OutcomeIgnored, nil
	default:
		log.WithField("status", ev.Status).Debug("Ignoring webhook event")
		return OutcomeIgnored, nil
	}

	if ev.Email == "" {
		log.Warn("Webhook event has no customer email")
		return OutcomeIgnored, nil
	}

	updated, err := r.store.SetPlanByEmail(ctx, ev.Email, plan)
	if err != nil {
		log.WithError(err).Error("Failed to set plan")
		return OutcomeError, fmt.Errorf("failed to apply %s event: %w", ev.Type, err)
	}
	if !updated {
		log.WithField("email", ev.Email).Warn("No account for webhook email")
		return OutcomeNoAccount, nil
	}

	r.metrics.RecordPlanChange("webhook", string(plan))
	log.WithFields(map[string]interface{}{
		"email": ev.Email,
		"plan":  plan,
	}).Info("Plan updated")
	return OutcomeApplied, nil
}
