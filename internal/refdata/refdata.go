// Package refdata supplies the reference data the pipeline checks documents
// against: the set of currently valid procurement order numbers and the
// per-supplier coordinate templates used as extraction hints.
package refdata

import (
	"context"
	"encoding/json"
)

// Supplier is the result of a reference-number lookup.
type Supplier struct {
	ReferenceNumber string
	SupplierID      string
	SupplierName    string
	// Template holds the coordinate template for this supplier's layout, nil
	// when none is registered.
	Template json.RawMessage
}

// Provider is the lookup interface consumed by the pipeline. It is treated
// as a plain read model, refreshed per pipeline run.
type Provider interface {
	// ValidReferences returns all currently valid order reference numbers.
	ValidReferences(ctx context.Context) ([]string, error)
	// Lookup resolves one reference number to its supplier, reporting
	// found=false for unknown numbers.
	Lookup(ctx context.Context, referenceNumber string) (Supplier, bool, error)
}
