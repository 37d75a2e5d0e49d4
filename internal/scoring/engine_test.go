package scoring

import (
	"encoding/json"
	"reflect"
	"testing"

	"confirmation-backend/internal/confirmation"
)

func validConfirmation(t *testing.T) *confirmation.Confirmation {
	t.Helper()
	raw := json.RawMessage(`{"documents":[{"SupplierConfirmation":{
		"reasoning": "All fields were clearly legible on the first page of the document.",
		"supplierConfirmationData": {"salesConfirmation": "AB-1", "date": {"value": "01#10#2025"}},
		"invoiceSupplierData": {"SupplierPartner": {"number": 4711}},
		"invoicingData": {"PaymentTerms": ""},
		"Correspondence": {"number": "BA12345"},
		"Type": {"code": "100"},
		"netTotal": {"amount": 450.0, "Currency": {"isoCode": "EUR"}},
		"Details": [{
			"number": 1,
			"totalQuantity": {"amount": 5, "Uom": {"code": "Stk"}},
			"deliveryDate": {"specialValue": "NONE", "date": "15.10.2025"},
			"grossPrice": {"amount": 100.0, "Currency": {"isoCode": "EUR"}},
			"discount": "10 %",
			"lineTotalAmount": 450.0,
			"CorrespondenceDetail": {"number": "1"}
		}]
	}}]}`)
	env, errs := confirmation.Validate(raw, confirmation.Context{})
	if len(errs) > 0 {
		t.Fatalf("fixture must validate: %v", errs)
	}
	return &env.Documents[0].SupplierConfirmation
}

func TestEvaluatePerfectDocument(t *testing.T) {
	engine := NewEngine(DefaultWeights())
	card := engine.Evaluate(validConfirmation(t), true, false)
	if card.TotalScore != 100 {
		t.Fatalf("score = %d, want 100 (penalties: %v)", card.TotalScore, card.Penalties)
	}
	if len(card.Penalties) != 0 {
		t.Fatalf("unexpected penalties: %v", card.Penalties)
	}
}

func TestEvaluateBonusCap(t *testing.T) {
	engine := NewEngine(DefaultWeights())
	card := engine.Evaluate(validConfirmation(t), true, true)
	if card.TotalScore != 100 {
		t.Fatalf("score = %d, want capped 100", card.TotalScore)
	}
}

func TestEvaluateUnknownSupplier(t *testing.T) {
	engine := NewEngine(DefaultWeights())
	card := engine.Evaluate(validConfirmation(t), false, false)
	if card.TotalScore != 85 {
		t.Fatalf("score = %d, want 85", card.TotalScore)
	}
}

func TestEvaluateForbiddenDocTypeGoesNegative(t *testing.T) {
	sc := validConfirmation(t)
	sc.DocTypeStatus = "ERROR: document type \"Rechnung\" is not a confirmation"

	engine := NewEngine(DefaultWeights())
	card := engine.Evaluate(sc, false, false)
	// 100 − 100 (doc type) − 15 (unknown supplier) = −15; no floor clamp.
	if card.TotalScore != -15 {
		t.Fatalf("score = %d, want -15", card.TotalScore)
	}
}

func TestScoreCardNotFloorClamped(t *testing.T) {
	card := NewScoreCard()
	card.AddPenalty(150, "catastrophic extraction")
	if card.TotalScore != -50 {
		t.Fatalf("score = %d, want -50", card.TotalScore)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	engine := NewEngine(DefaultWeights())
	sc := validConfirmation(t)
	first := engine.Evaluate(sc, true, false)
	second := engine.Evaluate(sc, true, false)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("evaluation not deterministic:\n%+v\n%+v", first, second)
	}
}

func TestEvaluateMissingFields(t *testing.T) {
	sc := validConfirmation(t)
	sc.SupplierConfirmationData.Date.Value = confirmation.DateValue{}
	sc.Correspondence.Number = "Nicht gefunden"
	sc.Details = nil

	engine := NewEngine(DefaultWeights())
	card := engine.Evaluate(sc, true, false)
	// 100 − 20 (date) − 25 (reference) − 50 (items) + 10 (known supplier) = 15
	if card.TotalScore != 15 {
		t.Fatalf("score = %d, want 15 (penalties: %v)", card.TotalScore, card.Penalties)
	}
}

func TestEvaluateLineMathPenaltyIsCapped(t *testing.T) {
	sc := validConfirmation(t)
	broken := sc.Details[0]
	broken.MathStatus = "ERROR: calculated 1.00, extracted 2.00"
	sc.Details = nil
	for i := 0; i < 15; i++ {
		sc.Details = append(sc.Details, broken)
	}

	engine := NewEngine(DefaultWeights())
	card := engine.Evaluate(sc, true, false)
	// min(30, 10 + 2×15) = 30, then +10 known-supplier bonus.
	if card.TotalScore != 80 {
		t.Fatalf("score = %d, want 80 (penalties: %v)", card.TotalScore, card.Penalties)
	}
}

func TestEvaluateReasoningUncertainty(t *testing.T) {
	sc := validConfirmation(t)
	sc.Reasoning = "The order number was unsicher and partially cut off at the page margin."

	engine := NewEngine(DefaultWeights())
	card := engine.Evaluate(sc, false, false)
	// 100 − 5 (reasoning) − 15 (unknown supplier) = 80
	if card.TotalScore != 80 {
		t.Fatalf("score = %d, want 80", card.TotalScore)
	}
}
