package confirmation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"confirmation-backend/internal/coerce"
)

// Tolerances and transform constants of the external numbering convention.
const (
	lineMathTolerance   = 0.05
	sumCheckTolerance   = 1.00
	positionNumberScale = 10
)

const (
	// StatusOK marks a passed cross-check.
	StatusOK = "OK"
	// warning/error class prefixes the scorer matches on.
	warnPrefix  = "WARNING: "
	errorPrefix = "ERROR: "
)

// IsWarning reports whether a status string is warning-class.
func IsWarning(status string) bool { return strings.HasPrefix(status, warnPrefix) }

// IsError reports whether a status string is error-class.
func IsError(status string) bool { return strings.HasPrefix(status, errorPrefix) }

// FieldError is one hard validation finding, addressable by field path.
type FieldError struct {
	FieldPath string `json:"field"`
	Message   string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("field %s: %s", e.FieldPath, e.Message)
}

// Context supplies reference data for validation. ValidReferences is the set
// of currently valid procurement order numbers, uppercased; when empty the
// reference check is skipped.
type Context struct {
	ValidReferences map[string]struct{}
}

// NewContext builds a Context from a list of valid reference numbers.
func NewContext(refs []string) Context {
	set := make(map[string]struct{}, len(refs))
	for _, r := range refs {
		if trimmed := strings.TrimSpace(r); trimmed != "" {
			set[strings.ToUpper(trimmed)] = struct{}{}
		}
	}
	return Context{ValidReferences: set}
}

// forbiddenDocTypes closes the set of document kinds this system must never
// book as a confirmation. Matching is substring-based on the lowercased type
// code/label.
var forbiddenDocTypes = []string{
	"invoice", "rechnung",
	"cancellation", "storno",
	"delivery note", "lieferschein",
	"credit note", "gutschrift",
}

// Validate decodes raw into an Envelope and runs the full validation pass:
// field-level constraints first (returned as FieldErrors), then the
// cross-field checks, which attach status strings to the document instead of
// failing it. A fresh Envelope is built on every call; results are never
// mutated afterwards.
func Validate(raw json.RawMessage, vctx Context) (*Envelope, []FieldError) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, []FieldError{{FieldPath: "documents", Message: "payload is not a document batch: " + err.Error()}}
	}
	if len(env.Documents) == 0 {
		return nil, []FieldError{{FieldPath: "documents", Message: "no documents in payload"}}
	}

	var errs []FieldError
	for i := range env.Documents {
		sc := &env.Documents[i].SupplierConfirmation
		prefix := fmt.Sprintf("documents[%d].supplierConfirmation", i)
		errs = append(errs, validateFields(sc, prefix, vctx)...)
		transformPositions(sc)
		crossCheck(sc)
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return &env, nil
}

// validateFields enforces the hard, type-level constraints.
func validateFields(sc *Confirmation, prefix string, vctx Context) []FieldError {
	var errs []FieldError

	date := sc.SupplierConfirmationData.Date.Value
	if date.Time == nil && date.Raw != "" && !coerce.IsPlaceholder(date.Raw) {
		errs = append(errs, FieldError{
			FieldPath: prefix + ".supplierConfirmationData.date.value",
			Message:   fmt.Sprintf("unparseable date %q", date.Raw),
		})
	}

	ref := sc.Correspondence.Number
	if ref.Found() && len(vctx.ValidReferences) > 0 {
		if _, ok := vctx.ValidReferences[strings.ToUpper(string(ref))]; !ok {
			errs = append(errs, FieldError{
				FieldPath: prefix + ".correspondence.number",
				Message:   fmt.Sprintf("reference number %q is unknown", string(ref)),
			})
		}
	}

	for j, item := range sc.Details {
		linePrefix := fmt.Sprintf("%s.details[%d]", prefix, j)
		if item.GrossPrice.Amount < 0 {
			errs = append(errs, FieldError{FieldPath: linePrefix + ".grossPrice.amount", Message: "amount must not be negative"})
		}
		if item.TotalQuantity.Amount < 0 {
			errs = append(errs, FieldError{FieldPath: linePrefix + ".totalQuantity.amount", Message: "quantity must not be negative"})
		}
		if item.LineTotalAmount < 0 {
			errs = append(errs, FieldError{FieldPath: linePrefix + ".lineTotalAmount", Message: "line total must not be negative"})
		}
	}
	if sc.NetTotal != nil && sc.NetTotal.Amount < 0 {
		errs = append(errs, FieldError{FieldPath: prefix + ".netTotal.amount", Message: "net total must not be negative"})
	}
	return errs
}

// transformPositions scales position numbers to the external numbering
// convention and mirrors them into the correspondence detail. Runs once per
// validation pass, on the freshly decoded document.
func transformPositions(sc *Confirmation) {
	for i := range sc.Details {
		item := &sc.Details[i]
		item.Number = item.Number * positionNumberScale
		if item.CorrespondenceDetail.Number != "" || item.Number != 0 {
			item.CorrespondenceDetail.Number = strconv.Itoa(int(item.Number))
		}
	}
}

// crossCheck attaches the soft status flags. These never fail validation;
// severity is weighed later by the scoring engine.
func crossCheck(sc *Confirmation) {
	sc.DocTypeStatus = docTypeStatus(sc.DocType.Code)
	sc.DatePlausibilityStatus = datePlausibilityStatus(sc)
	sc.SumValidationStatus = sumValidationStatus(sc)
	for i := range sc.Details {
		sc.Details[i].MathStatus = lineMathStatus(&sc.Details[i])
	}
}

func docTypeStatus(code string) string {
	lowered := strings.ToLower(code)
	for _, forbidden := range forbiddenDocTypes {
		if strings.Contains(lowered, forbidden) {
			return errorPrefix + "document type " + strconv.Quote(code) + " is not a confirmation"
		}
	}
	return StatusOK
}

func datePlausibilityStatus(sc *Confirmation) string {
	headerDate := sc.SupplierConfirmationData.Date.Value.Time
	if headerDate == nil {
		// Broken or missing header date: nothing to compare against.
		return StatusOK
	}
	for _, item := range sc.Details {
		delivery := item.DeliveryDate.Date.Time
		if delivery == nil {
			continue
		}
		if delivery.Before(*headerDate) {
			return warnPrefix + fmt.Sprintf("position %d delivery date %s lies before document date %s",
				int(item.Number), delivery.Format(coerce.DateLayout), headerDate.Format(coerce.DateLayout))
		}
		if delivery.After(headerDate.AddDate(3, 0, 0)) {
			return errorPrefix + fmt.Sprintf("position %d delivery date %s is more than three years after document date",
				int(item.Number), delivery.Format(coerce.DateLayout))
		}
	}
	return StatusOK
}

func sumValidationStatus(sc *Confirmation) string {
	if sc.NetTotal == nil || sc.NetTotal.Amount == 0 {
		return warnPrefix + "net total missing, sum not verifiable"
	}
	var sum float64
	for _, item := range sc.Details {
		sum += float64(item.LineTotalAmount)
	}
	sum = coerce.Round2(sum)
	if math.Abs(sum-float64(sc.NetTotal.Amount)) > sumCheckTolerance {
		return errorPrefix + fmt.Sprintf("line total sum %.2f differs from net total %.2f", sum, float64(sc.NetTotal.Amount))
	}
	return StatusOK
}

// lineMathStatus checks round(qty × price × (1 − disc%) − discAbs, 2)
// against the extracted line total within the tolerance.
func lineMathStatus(item *LineItem) string {
	qty := float64(item.TotalQuantity.Amount)
	price := float64(item.GrossPrice.Amount)
	if qty == 0 || price == 0 {
		return warnPrefix + "quantity or price is zero"
	}

	expected := qty * price
	if item.Discount.IsPercent {
		expected *= 1 - item.Discount.Value/100
	} else {
		expected -= item.Discount.Value
	}
	expected = coerce.Round2(expected)

	if math.Abs(expected-float64(item.LineTotalAmount)) > lineMathTolerance {
		return errorPrefix + fmt.Sprintf("calculated %.2f, extracted %.2f", expected, float64(item.LineTotalAmount))
	}
	return StatusOK
}
