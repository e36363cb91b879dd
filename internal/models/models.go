package models

import (
	"errors"
	"fmt"
	"time"
)

// Errors shared across the service layers.
var (
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrNotFound               = errors.New("not found")
	ErrConcurrentModification = errors.New("concurrent modification")
)

// QuoteStatus is the closed status vocabulary of a devis. The literal
// tokens are wire-visible: presentation layers key labels, colors and
// filters off these exact strings.
type QuoteStatus string

const (
	StatusBrouillon               QuoteStatus = "brouillon"
	StatusSoumis                  QuoteStatus = "soumis"
	StatusEnEtude                 QuoteStatus = "en_etude"
	StatusModifieAdmin            QuoteStatus = "modifie_admin"
	StatusAttenteValidationClient QuoteStatus = "attente_validation_client"
	StatusValideClient            QuoteStatus = "valide_client"
	StatusAccepte                 QuoteStatus = "accepte"
	StatusEntretienPrevu          QuoteStatus = "entretien_prevu"
	StatusEntretienEffectue       QuoteStatus = "entretien_effectue"
	StatusDevisFinal              QuoteStatus = "devis_final"
	StatusTransformeContrat       QuoteStatus = "transforme_contrat"
	StatusContratSigne            QuoteStatus = "contrat_signe"
	StatusValideFinal             QuoteStatus = "valide_final"
	StatusRefuse                  QuoteStatus = "refuse"
	StatusExpire                  QuoteStatus = "expire"
	StatusAnnule                  QuoteStatus = "annule"
)

// AllStatuses lists every member of the enumeration, in triage display order.
var AllStatuses = []QuoteStatus{
	StatusBrouillon,
	StatusSoumis,
	StatusEnEtude,
	StatusModifieAdmin,
	StatusAttenteValidationClient,
	StatusValideClient,
	StatusAccepte,
	StatusEntretienPrevu,
	StatusEntretienEffectue,
	StatusDevisFinal,
	StatusTransformeContrat,
	StatusContratSigne,
	StatusValideFinal,
	StatusRefuse,
	StatusExpire,
	StatusAnnule,
}

// String returns the wire token.
func (s QuoteStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a known member of the enumeration.
func (s QuoteStatus) IsValid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal returns true for absorbing states: no transition leaves them.
func (s QuoteStatus) IsTerminal() bool {
	switch s {
	case StatusValideFinal, StatusRefuse, StatusExpire, StatusAnnule:
		return true
	default:
		return false
	}
}

// ParseStatus parses a wire token into a QuoteStatus.
func ParseStatus(raw string) (QuoteStatus, error) {
	s := QuoteStatus(raw)
	if !s.IsValid() {
		return "", fmt.Errorf("unknown quote status %q", raw)
	}
	return s, nil
}

// ActorRole identifies which side of the service a caller acts from.
type ActorRole string

const (
	RoleClient ActorRole = "client"
	RoleAdmin  ActorRole = "admin"
)

// Actor is the explicit caller identity passed into every status mutation.
type Actor struct {
	ID   string    `json:"id"`
	Role ActorRole `json:"role"`
}

// BudgetBracket is the coarse labeled range a quote total classifies into.
type BudgetBracket string

const (
	BracketUnder1000 BudgetBracket = "500-1000"
	BracketTo2000    BudgetBracket = "1000-2000"
	BracketTo5000    BudgetBracket = "2000-5000"
	BracketOver5000  BudgetBracket = "5000+"
)

// PriceBand is one guest-count tier of a catalog item's pricing table.
// Max is nil when the band is unbounded above. Prices are in cents.
type PriceBand struct {
	ID         int64     `db:"id" json:"id"`
	ItemID     int64     `db:"item_id" json:"item_id"`
	Min        int       `db:"guest_min" json:"min"`
	Max        *int      `db:"guest_max" json:"max"`
	PriceCents int64     `db:"price_cents" json:"price_cents"`
	Label      *string   `db:"label" json:"label,omitempty"`
	Position   int       `db:"position" json:"position"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Matches reports whether a guest count falls inside the band.
func (b PriceBand) Matches(guestCount int) bool {
	return guestCount >= b.Min && (b.Max == nil || guestCount <= *b.Max)
}

// CatalogItem is a purchasable service line. Bands are kept in the order
// the back-office defined them; the resolver never re-sorts.
type CatalogItem struct {
	ID             int64       `db:"id" json:"id"`
	Name           string      `db:"name" json:"name"`
	BasePriceCents int64       `db:"base_price_cents" json:"base_price_cents"`
	Bands          []PriceBand `db:"-" json:"bands"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

// QuoteSelection is one catalog item chosen during the wizard. The price is
// a snapshot resolved at selection time, never re-derived from the catalog.
type QuoteSelection struct {
	ID                 int64 `db:"id" json:"id"`
	QuoteID            int64 `db:"quote_id" json:"quote_id"`
	ItemID             int64 `db:"item_id" json:"item_id"`
	ResolvedPriceCents int64 `db:"resolved_price_cents" json:"resolved_price_cents"`
	Position           int   `db:"position" json:"position"`
}

// Quote is the persisted aggregate. Status is the single source of truth
// for workflow position; Version guards every status write (compare-and-set).
type Quote struct {
	ID               int64            `db:"id" json:"id"`
	Status           QuoteStatus      `db:"status" json:"status"`
	Version          int64            `db:"version" json:"version"`
	GuestCount       int              `db:"guest_count" json:"guest_count"`
	TotalCents       int64            `db:"total_cents" json:"total_cents"`
	BudgetBracket    BudgetBracket    `db:"budget_bracket" json:"budget_bracket"`
	Selections       []QuoteSelection `db:"-" json:"selections"`
	CreatedBy        string           `db:"created_by" json:"created_by"`
	LastTransitionBy string           `db:"last_transition_by" json:"last_transition_by,omitempty"`
	LastTransitionAt *time.Time       `db:"last_transition_at" json:"last_transition_at,omitempty"`
	IdempotencyKey   string           `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// ProcessedEvent for consumer idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
