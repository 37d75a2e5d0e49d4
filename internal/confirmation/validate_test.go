package confirmation

import (
	"encoding/json"
	"strings"
	"testing"
)

func payload(t *testing.T, confirmation string) json.RawMessage {
	t.Helper()
	return json.RawMessage(`{"documents":[{"SupplierConfirmation":` + confirmation + `}]}`)
}

const baseConfirmation = `{
	"reasoning": "All fields were clearly legible on the first page of the document.",
	"supplierConfirmationData": {"salesConfirmation": "AB-998", "date": {"value": "01#10#2025"}},
	"invoiceSupplierData": {"SupplierPartner": {"number": "4711"}},
	"invoicingData": {"PaymentTerms": ""},
	"Correspondence": {"number": "BA12345"},
	"Type": {"code": "100"},
	"netTotal": {"amount": "450,00", "Currency": {"isoCode": "EUR"}},
	"Details": [{
		"number": "1",
		"totalQuantity": {"amount": "5", "Uom": {"code": "Stk"}},
		"deliveryDate": {"specialValue": "NONE", "date": "15.10.2025"},
		"grossPrice": {"amount": "100,00", "Currency": {"isoCode": "EUR"}},
		"discount": "10 %",
		"lineTotalAmount": "450,00",
		"CorrespondenceDetail": {"number": "1"}
	}]
}`

func TestValidateHappyPath(t *testing.T) {
	env, errs := Validate(payload(t, baseConfirmation), NewContext([]string{"BA12345"}))
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	sc := env.Documents[0].SupplierConfirmation

	if sc.DocTypeStatus != StatusOK {
		t.Errorf("DocTypeStatus = %q", sc.DocTypeStatus)
	}
	if sc.DatePlausibilityStatus != StatusOK {
		t.Errorf("DatePlausibilityStatus = %q", sc.DatePlausibilityStatus)
	}
	if sc.SumValidationStatus != StatusOK {
		t.Errorf("SumValidationStatus = %q", sc.SumValidationStatus)
	}
	if got := sc.Details[0].MathStatus; got != StatusOK {
		t.Errorf("MathStatus = %q (5 × 100.00 − 10%% should match 450.00)", got)
	}
}

func TestValidatePositionTransform(t *testing.T) {
	env, errs := Validate(payload(t, baseConfirmation), Context{})
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	item := env.Documents[0].SupplierConfirmation.Details[0]
	if item.Number != 10 {
		t.Errorf("position number = %d, want 10", item.Number)
	}
	if item.CorrespondenceDetail.Number != "10" {
		t.Errorf("correspondence detail = %q, want \"10\"", item.CorrespondenceDetail.Number)
	}
}

func TestValidateLineMathMismatch(t *testing.T) {
	broken := strings.Replace(baseConfirmation, `"lineTotalAmount": "450,00"`, `"lineTotalAmount": "500,00"`, 1)
	broken = strings.Replace(broken, `"netTotal": {"amount": "450,00"`, `"netTotal": {"amount": "500,00"`, 1)
	env, errs := Validate(payload(t, broken), Context{})
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	status := env.Documents[0].SupplierConfirmation.Details[0].MathStatus
	if !IsError(status) {
		t.Errorf("MathStatus = %q, want error class", status)
	}
}

func TestValidateZeroQuantityWarns(t *testing.T) {
	broken := strings.Replace(baseConfirmation, `"amount": "5"`, `"amount": "Nicht gefunden"`, 1)
	env, errs := Validate(payload(t, broken), Context{})
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	status := env.Documents[0].SupplierConfirmation.Details[0].MathStatus
	if !IsWarning(status) {
		t.Errorf("MathStatus = %q, want warning class", status)
	}
}

func TestValidateSumMismatch(t *testing.T) {
	broken := strings.Replace(baseConfirmation, `"netTotal": {"amount": "450,00"`, `"netTotal": {"amount": "999,99"`, 1)
	env, errs := Validate(payload(t, broken), Context{})
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	status := env.Documents[0].SupplierConfirmation.SumValidationStatus
	if !IsError(status) {
		t.Errorf("SumValidationStatus = %q, want error class", status)
	}
}

func TestValidateSumWithinTolerance(t *testing.T) {
	nearby := strings.Replace(baseConfirmation, `"netTotal": {"amount": "450,00"`, `"netTotal": {"amount": "450,80"`, 1)
	env, errs := Validate(payload(t, nearby), Context{})
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if status := env.Documents[0].SupplierConfirmation.SumValidationStatus; status != StatusOK {
		t.Errorf("SumValidationStatus = %q, want OK within 1.00", status)
	}
}

func TestValidateMissingNetTotalWarns(t *testing.T) {
	broken := strings.Replace(baseConfirmation, `"netTotal": {"amount": "450,00", "Currency": {"isoCode": "EUR"}},`, ``, 1)
	env, errs := Validate(payload(t, broken), Context{})
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	status := env.Documents[0].SupplierConfirmation.SumValidationStatus
	if !IsWarning(status) {
		t.Errorf("SumValidationStatus = %q, want warning class", status)
	}
}

func TestValidateForbiddenDocType(t *testing.T) {
	broken := strings.Replace(baseConfirmation, `"Type": {"code": "100"}`, `"Type": {"code": "Rechnung"}`, 1)
	env, errs := Validate(payload(t, broken), Context{})
	if len(errs) > 0 {
		t.Fatalf("forbidden doc type must not fail validation: %v", errs)
	}
	status := env.Documents[0].SupplierConfirmation.DocTypeStatus
	if !IsError(status) {
		t.Errorf("DocTypeStatus = %q, want error class", status)
	}
}

func TestValidateDeliveryBeforeDocumentDate(t *testing.T) {
	broken := strings.Replace(baseConfirmation, `"date": "15.10.2025"`, `"date": "15.09.2025"`, 1)
	env, errs := Validate(payload(t, broken), Context{})
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	status := env.Documents[0].SupplierConfirmation.DatePlausibilityStatus
	if !IsWarning(status) {
		t.Errorf("DatePlausibilityStatus = %q, want warning class", status)
	}
}

func TestValidateUnknownReference(t *testing.T) {
	_, errs := Validate(payload(t, baseConfirmation), NewContext([]string{"BA99999"}))
	if len(errs) != 1 {
		t.Fatalf("expected exactly one error, got %v", errs)
	}
	if !strings.Contains(errs[0].FieldPath, "correspondence.number") {
		t.Errorf("error path = %q", errs[0].FieldPath)
	}
}

func TestValidateUnparseableHeaderDate(t *testing.T) {
	broken := strings.Replace(baseConfirmation, `"date": {"value": "01#10#2025"}`, `"date": {"value": "sometime in autumn"}`, 1)
	_, errs := Validate(payload(t, broken), Context{})
	if len(errs) != 1 {
		t.Fatalf("expected exactly one error, got %v", errs)
	}
}

func TestValidateMissingHeaderDateIsSoft(t *testing.T) {
	missing := strings.Replace(baseConfirmation, `"date": {"value": "01#10#2025"}`, `"date": {"value": "Nicht gefunden"}`, 1)
	env, errs := Validate(payload(t, missing), Context{})
	if len(errs) > 0 {
		t.Fatalf("placeholder date must not fail validation: %v", errs)
	}
	if !env.Documents[0].SupplierConfirmation.SupplierConfirmationData.Date.Value.IsZero() {
		t.Error("expected nil date for placeholder input")
	}
}

func TestValidateEmptyBatch(t *testing.T) {
	_, errs := Validate(json.RawMessage(`{"documents":[]}`), Context{})
	if len(errs) == 0 {
		t.Fatal("expected error for empty batch")
	}
}

func TestValidatedJSONRoundTrip(t *testing.T) {
	env, errs := Validate(payload(t, baseConfirmation), Context{})
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	out, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), `"01.10.2025"`) {
		t.Errorf("expected canonical date in output, got %s", out)
	}
	if !strings.Contains(string(out), `"mathStatus":"OK"`) {
		t.Errorf("expected math status in output, got %s", out)
	}
}
