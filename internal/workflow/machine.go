// Package workflow owns the status field of a quote: which transitions are
// legal from which state, for which actor. It mutates the in-memory quote
// only; durable compare-and-set is the store's job.
package workflow

import (
	"fmt"
	"time"

	"devis-service/internal/models"
)

// Transition is the outcome of a successful status change, handed to the
// persistence and event layers.
type Transition struct {
	From       models.QuoteStatus
	To         models.QuoteStatus
	Actor      models.Actor
	OccurredAt time.Time
}

// Submit moves a draft to soumis. Client action only, legal only from
// brouillon. The caller freezes selections and budget bracket at this point;
// nothing is recomputed afterwards.
func Submit(quote *models.Quote, actor models.Actor) (Transition, error) {
	if actor.Role != models.RoleClient {
		return Transition{}, fmt.Errorf("%w: submit requires a client actor, got %s", models.ErrInvalidTransition, actor.Role)
	}
	if quote.Status != models.StatusBrouillon {
		return Transition{}, fmt.Errorf("%w: submit from %s, want %s", models.ErrInvalidTransition, quote.Status, models.StatusBrouillon)
	}
	return apply(quote, models.StatusSoumis, actor), nil
}

// ClientValidate accepts the proposal on the client's behalf. Legal only
// from attente_validation_client.
func ClientValidate(quote *models.Quote, actor models.Actor) (Transition, error) {
	if actor.Role != models.RoleClient {
		return Transition{}, fmt.Errorf("%w: validate requires a client actor, got %s", models.ErrInvalidTransition, actor.Role)
	}
	if quote.Status != models.StatusAttenteValidationClient {
		return Transition{}, fmt.Errorf("%w: validate from %s, want %s", models.ErrInvalidTransition, quote.Status, models.StatusAttenteValidationClient)
	}
	return apply(quote, models.StatusValideClient, actor), nil
}

// AdminTransition moves a quote to any status in the vocabulary from any
// non-terminal source. The triage screen exposes the full set
// unconditionally; admins may jump, skip or revert stages, so the machine
// does not restrict the target beyond membership in the enumeration.
func AdminTransition(quote *models.Quote, target models.QuoteStatus, actor models.Actor) (Transition, error) {
	if actor.Role != models.RoleAdmin {
		return Transition{}, fmt.Errorf("%w: triage requires an admin actor, got %s", models.ErrInvalidTransition, actor.Role)
	}
	if !target.IsValid() {
		return Transition{}, fmt.Errorf("%w: unknown target status %q", models.ErrInvalidTransition, target)
	}
	if quote.Status.IsTerminal() {
		return Transition{}, fmt.Errorf("%w: %s is terminal", models.ErrInvalidTransition, quote.Status)
	}
	return apply(quote, target, actor), nil
}

// AdminTargets returns the transition vocabulary the triage screen renders.
func AdminTargets() []models.QuoteStatus {
	targets := make([]models.QuoteStatus, len(models.AllStatuses))
	copy(targets, models.AllStatuses)
	return targets
}

func apply(quote *models.Quote, target models.QuoteStatus, actor models.Actor) Transition {
	now := time.Now()
	tr := Transition{
		From:       quote.Status,
		To:         target,
		Actor:      actor,
		OccurredAt: now,
	}
	quote.Status = target
	quote.LastTransitionBy = actor.ID
	quote.LastTransitionAt = &now
	return tr
}
