// Package scoring rates validated supplier confirmations. The engine runs
// five ordered, independent checks; each only adds findings to the ScoreCard
// and never reads another check's output, so evaluation is deterministic for
// identical inputs.
package scoring

import (
	"fmt"
	"strings"

	"confirmation-backend/internal/confirmation"
)

// Weights carries the penalty and bonus points for each check. Values are
// threaded in explicitly instead of read from process-global state so that
// every Engine instance is self-contained.
type Weights struct {
	ReasoningMissing int
	MissingDate      int
	MissingReference int
	MissingItems     int
	UnknownSupplier  int
	KnownSupplier    int
	TemplateMatch    int
}

// DefaultWeights are the production point values.
func DefaultWeights() Weights {
	return Weights{
		ReasoningMissing: 5,
		MissingDate:      20,
		MissingReference: 25,
		MissingItems:     50,
		UnknownSupplier:  15,
		KnownSupplier:    10,
		TemplateMatch:    15,
	}
}

// uncertaintyMarkers flag reasoning text that admits the extraction guessed.
var uncertaintyMarkers = []string{"nicht gefunden", "not found", "unsicher", "unsure", "uncertain"}

// Engine evaluates documents into ScoreCards.
type Engine struct {
	weights Weights
}

// NewEngine builds an Engine with the given weights.
func NewEngine(w Weights) *Engine {
	return &Engine{weights: w}
}

// Evaluate runs the five checks and returns a fresh ScoreCard.
func (e *Engine) Evaluate(sc *confirmation.Confirmation, knownSupplier, templateMatch bool) *ScoreCard {
	card := NewScoreCard()
	card.TemplateMatch = templateMatch

	e.checkReasoning(sc, card)
	e.checkMandatoryFields(sc, card)
	e.checkStatusFlags(sc, card)
	e.checkLineMath(sc, card)
	e.checkReferenceData(sc, card, knownSupplier, templateMatch)

	return card
}

// checkReasoning verifies the extraction justified its decisions.
func (e *Engine) checkReasoning(sc *confirmation.Confirmation, card *ScoreCard) {
	reasoning := strings.TrimSpace(sc.Reasoning)
	if len(reasoning) < 20 {
		card.AddPenalty(e.weights.ReasoningMissing, "no or insufficient reasoning provided")
		return
	}
	lowered := strings.ToLower(reasoning)
	for _, marker := range uncertaintyMarkers {
		if strings.Contains(lowered, marker) {
			card.AddPenalty(e.weights.ReasoningMissing, "reasoning indicates uncertainty")
			return
		}
	}
	card.AddSignal("reasoning present")
}

func (e *Engine) checkMandatoryFields(sc *confirmation.Confirmation, card *ScoreCard) {
	if sc.SupplierConfirmationData.Date.Value.IsZero() {
		card.AddPenalty(e.weights.MissingDate, "document date missing or unreadable")
	}
	if !sc.Correspondence.Number.Found() {
		card.AddPenalty(e.weights.MissingReference, "order reference number missing")
	}
	if len(sc.Details) == 0 {
		card.AddPenalty(e.weights.MissingItems, "no line items found")
	}
}

// checkStatusFlags weighs the status strings attached during validation.
func (e *Engine) checkStatusFlags(sc *confirmation.Confirmation, card *ScoreCard) {
	if confirmation.IsError(sc.DocTypeStatus) {
		// Showstopper: wrong document kind entirely.
		card.AddPenalty(100, "forbidden document type: "+sc.DocTypeStatus)
	}

	switch {
	case confirmation.IsWarning(sc.DatePlausibilityStatus):
		card.AddPenalty(10, "date warning: "+sc.DatePlausibilityStatus)
	case confirmation.IsError(sc.DatePlausibilityStatus):
		card.AddPenalty(15, "date error: "+sc.DatePlausibilityStatus)
	}

	switch {
	case confirmation.IsWarning(sc.SumValidationStatus):
		card.AddPenalty(5, "net total missing, sum not verifiable")
	case confirmation.IsError(sc.SumValidationStatus):
		card.AddPenalty(20, "sum discrepancy: "+sc.SumValidationStatus)
	default:
		card.AddSignal("net total checked and consistent")
	}
}

func (e *Engine) checkLineMath(sc *confirmation.Confirmation, card *ScoreCard) {
	mathErrors := 0
	zeroLines := 0
	for _, item := range sc.Details {
		switch {
		case confirmation.IsError(item.MathStatus):
			mathErrors++
		case confirmation.IsWarning(item.MathStatus):
			zeroLines++
		}
	}
	if mathErrors > 0 {
		penalty := 10 + 2*mathErrors
		if penalty > 30 {
			penalty = 30
		}
		card.AddPenalty(penalty, fmt.Sprintf("arithmetic errors in %d positions", mathErrors))
	}
	if zeroLines > 0 {
		card.AddPenalty(5, fmt.Sprintf("%d positions have zero quantity or price", zeroLines))
	}
}

func (e *Engine) checkReferenceData(sc *confirmation.Confirmation, card *ScoreCard, knownSupplier, templateMatch bool) {
	if knownSupplier {
		card.AddBonus(e.weights.KnownSupplier, "supplier verified against reference data")
	} else {
		card.AddPenalty(e.weights.UnknownSupplier, "supplier unknown, reference number not in database")
	}
	if templateMatch {
		card.AddBonus(e.weights.TemplateMatch, "coordinate template available for supplier")
	}
	if sc.InvoiceSupplierData.SupplierPartner.Number == 0 && !knownSupplier {
		card.AddSignal("no supplier partner number extracted")
	}
}
