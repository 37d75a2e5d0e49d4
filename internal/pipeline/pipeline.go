// Package pipeline orchestrates one document-processing run:
// OCR → parse → validate (one schema-repair attempt) → score (one
// business-repair attempt) → rescore → route. Runs are independent and share
// no mutable state; every run builds its own document and score cards.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"confirmation-backend/internal/confirmation"
	"confirmation-backend/internal/judge"
	"confirmation-backend/internal/ocr"
	"confirmation-backend/internal/refdata"
	"confirmation-backend/internal/scoring"
	"confirmation-backend/internal/shared/telemetry"
)

// Thresholds control repair triggering and routing.
type Thresholds struct {
	// AutoValid and above books without review.
	AutoValid int
	// DoneUnreviewed and above finishes processing without escalation.
	DoneUnreviewed int
	// RepairBelow triggers one business-repair attempt.
	RepairBelow int
}

// DefaultThresholds are the production values.
func DefaultThresholds() Thresholds {
	return Thresholds{AutoValid: 85, DoneUnreviewed: 70, RepairBelow: 85}
}

// Pipeline processes documents. Judge and RefData are optional; without a
// judge no repair attempts happen, without reference data every supplier
// counts as unknown.
type Pipeline struct {
	OCR        ocr.Engine
	Gate       *ocr.Gate
	Judge      judge.Healer
	Scorer     *scoring.Engine
	RefData    refdata.Provider
	Schema     json.RawMessage
	Thresholds Thresholds

	// Prescan finds a reference number in the file before the OCR call, so a
	// known supplier's layout template can steer the extraction. Overridable
	// in tests.
	Prescan func(source []byte, filename string) string
}

// New builds a Pipeline with default gate and thresholds.
func New(engine ocr.Engine, healer judge.Healer, scorer *scoring.Engine, refs refdata.Provider) *Pipeline {
	return &Pipeline{
		OCR:        engine,
		Gate:       ocr.NewGate(),
		Judge:      healer,
		Scorer:     scorer,
		RefData:    refs,
		Thresholds: DefaultThresholds(),
		Prescan:    ocr.PrescanReference,
	}
}

// Process runs the full pipeline on one document. The returned error is
// non-nil only for OCR service failures whose policy (halt, backoff,
// quarantine) the caller owns; all document-level outcomes, including
// escalation to manual review, are normal Results.
func (p *Pipeline) Process(ctx context.Context, source []byte, filename string) (Result, error) {
	res := Result{Filename: filename, FileSizeBytes: len(source)}

	gate := p.Gate.Check(source, filename)
	res.PageCount = gate.PageCount
	res.IsScanned = gate.IsScanned
	if !gate.Valid {
		res.Error = "input rejected: " + gate.Reason
		return res, nil
	}

	if p.OCR == nil {
		return Result{}, fmt.Errorf("ocr extract %s: no engine configured", filename)
	}
	text, err := p.OCR.Extract(ctx, source, filename, p.Schema, p.prescanHints(ctx, source, filename))
	if err != nil {
		return Result{}, fmt.Errorf("ocr extract %s: %w", filename, err)
	}
	if strings.TrimSpace(text) == "" {
		res.Error = "OCR returned empty text"
		return res, nil
	}

	raw := json.RawMessage(text)
	if !json.Valid(raw) {
		res.Error = "OCR returned invalid JSON"
		res.RawJSON = nil
		return res, nil
	}
	res.RawJSON = raw

	vctx := p.validationContext(ctx)

	env, finalJSON, fieldErrs := p.validateWithRepair(ctx, source, filename, raw, vctx, &res)
	res.ValidatedJSON = finalJSON
	if env == nil {
		// Unrepairable validation failure: the document still surfaces to the
		// human queue instead of being dropped.
		telemetry.Info("pipeline.escalate", map[string]any{
			"filename": filename,
			"errors":   len(fieldErrs),
		})
		res.Success = true
		res.NeedsManualReview = true
		res.Error = joinFieldErrors(fieldErrs)
		res.Route = RouteReview
		return res, nil
	}

	cards, score := p.scoreAll(ctx, env)
	res.ScoreCards = cards
	res.InitialScore = score
	res.FinalScore = score

	if score < p.Thresholds.RepairBelow && p.Judge != nil {
		p.businessRepair(ctx, source, filename, env, vctx, &res)
	}

	res.Success = true
	res.Route = p.route(res.FinalScore)
	return res, nil
}

// prescanHints runs the cheap pre-OCR scan of the file for a reference number
// and, when the number belongs to a registered supplier, resolves that
// supplier's coordinate template as extraction hints. Best effort.
func (p *Pipeline) prescanHints(ctx context.Context, source []byte, filename string) json.RawMessage {
	if p.Prescan == nil || p.RefData == nil {
		return nil
	}
	ref := p.Prescan(source, filename)
	if ref == "" {
		return nil
	}
	_, template := p.lookupSupplier(ctx, ref)
	if template != nil {
		telemetry.Info("pipeline.prescan", map[string]any{
			"filename":  filename,
			"reference": ref,
		})
	}
	return template
}

func (p *Pipeline) validationContext(ctx context.Context) confirmation.Context {
	if p.RefData == nil {
		return confirmation.Context{}
	}
	refs, err := p.RefData.ValidReferences(ctx)
	if err != nil {
		telemetry.Error("pipeline.refdata", map[string]any{"error": err.Error()})
		return confirmation.Context{}
	}
	return confirmation.NewContext(refs)
}

// validateWithRepair validates raw and, on failure, makes at most one
// schema-repair attempt. It returns the validated envelope (nil when
// unrepairable), the JSON that should be persisted, and the field errors of
// the last attempt.
func (p *Pipeline) validateWithRepair(ctx context.Context, source []byte, filename string, raw json.RawMessage, vctx confirmation.Context, res *Result) (*confirmation.Envelope, json.RawMessage, []confirmation.FieldError) {
	env, errs := confirmation.Validate(raw, vctx)
	if env != nil {
		return env, marshalEnvelope(env, raw), nil
	}
	if p.Judge == nil {
		return nil, raw, errs
	}

	res.SchemaRepairAttempted = true
	hints := p.templateHints(ctx, raw)
	healed, err := p.Judge.Heal(ctx, source, filename, raw, errs, hints)
	if err != nil || healed == nil {
		if err != nil {
			telemetry.Error("pipeline.schema_repair", map[string]any{"filename": filename, "error": err.Error()})
		}
		return nil, raw, errs
	}

	env2, errs2 := confirmation.Validate(healed, vctx)
	if env2 == nil {
		return nil, raw, errs2
	}
	res.SchemaRepairSuccess = true
	return env2, marshalEnvelope(env2, healed), nil
}

// marshalEnvelope serializes the validated envelope for persistence, so the
// stored payload carries the coerced values, transformed position numbers and
// cross-check status flags rather than the raw extraction echo.
func marshalEnvelope(env *confirmation.Envelope, fallback json.RawMessage) json.RawMessage {
	b, err := json.Marshal(env)
	if err != nil {
		return fallback
	}
	return b
}

// businessRepair makes at most one quality-driven repair attempt. The result
// is adopted only when re-scoring strictly improves.
func (p *Pipeline) businessRepair(ctx context.Context, source []byte, filename string, env *confirmation.Envelope, vctx confirmation.Context, res *Result) {
	var businessErrs []confirmation.FieldError
	for i, card := range res.ScoreCards {
		for _, penalty := range card.Penalties {
			businessErrs = append(businessErrs, confirmation.FieldError{
				FieldPath: fmt.Sprintf("document_%d", i),
				Message:   penalty,
			})
		}
	}
	if len(businessErrs) == 0 {
		return
	}

	res.BusinessRepairAttempted = true

	current, err := json.Marshal(env)
	if err != nil {
		return
	}
	hints := p.templateHints(ctx, current)
	healed, err := p.Judge.Heal(ctx, source, filename, current, businessErrs, hints)
	if err != nil || healed == nil {
		if err != nil {
			telemetry.Error("pipeline.business_repair", map[string]any{"filename": filename, "error": err.Error()})
		}
		return
	}

	env2, errs := confirmation.Validate(healed, vctx)
	if env2 == nil {
		telemetry.Info("pipeline.business_repair_invalid", map[string]any{
			"filename": filename,
			"errors":   len(errs),
		})
		return
	}

	cards2, score2 := p.scoreAll(ctx, env2)
	if score2 <= res.InitialScore {
		telemetry.Info("pipeline.business_repair_no_gain", map[string]any{
			"filename": filename,
			"old":      res.InitialScore,
			"new":      score2,
		})
		return
	}

	res.BusinessRepairSuccess = true
	res.ValidatedJSON = marshalEnvelope(env2, healed)
	res.ScoreCards = cards2
	res.FinalScore = score2
}

// scoreAll evaluates every confirmation in the batch and returns the cards
// plus the average score.
func (p *Pipeline) scoreAll(ctx context.Context, env *confirmation.Envelope) ([]scoring.ScoreCard, int) {
	var cards []scoring.ScoreCard
	total := 0
	for i := range env.Documents {
		sc := &env.Documents[i].SupplierConfirmation
		known, template := p.lookupSupplier(ctx, string(sc.Correspondence.Number))
		card := p.Scorer.Evaluate(sc, known, template != nil)
		cards = append(cards, *card)
		total += card.TotalScore
	}
	if len(cards) == 0 {
		return cards, 0
	}
	return cards, floorDiv(total, len(cards))
}

// floorDiv rounds the quotient toward negative infinity, so batch averages
// with negative card scores round down instead of toward zero.
func floorDiv(total, n int) int {
	q := total / n
	if total%n != 0 && (total < 0) != (n < 0) {
		q--
	}
	return q
}

func (p *Pipeline) lookupSupplier(ctx context.Context, referenceNumber string) (bool, json.RawMessage) {
	if p.RefData == nil || referenceNumber == "" {
		return false, nil
	}
	supplier, found, err := p.RefData.Lookup(ctx, referenceNumber)
	if err != nil {
		telemetry.Error("pipeline.supplier_lookup", map[string]any{"error": err.Error()})
		return false, nil
	}
	if !found {
		return false, nil
	}
	return true, supplier.Template
}

// templateHints resolves coordinate hints for the judge from the candidate
// reference number inside a payload. Best effort; any failure means no hints.
func (p *Pipeline) templateHints(ctx context.Context, raw json.RawMessage) json.RawMessage {
	if p.RefData == nil {
		return nil
	}
	var probe struct {
		Documents []struct {
			SupplierConfirmation struct {
				Correspondence struct {
					Number string `json:"number"`
				} `json:"Correspondence"`
			} `json:"SupplierConfirmation"`
		} `json:"documents"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || len(probe.Documents) == 0 {
		return nil
	}
	_, template := p.lookupSupplier(ctx, probe.Documents[0].SupplierConfirmation.Correspondence.Number)
	return template
}

func (p *Pipeline) route(score int) Route {
	switch {
	case score >= p.Thresholds.AutoValid:
		return RouteAutoValid
	case score >= p.Thresholds.DoneUnreviewed:
		return RouteDone
	default:
		return RouteReview
	}
}

func joinFieldErrors(errs []confirmation.FieldError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, " | ")
}
