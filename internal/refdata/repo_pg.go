package refdata

import (
	"context"
	"database/sql"
	"errors"
)

// PGProvider implements Provider against Postgres.
type PGProvider struct {
	DB *sql.DB
}

// ValidReferences returns all reference numbers from valid_reference_numbers.
func (p *PGProvider) ValidReferences(ctx context.Context) ([]string, error) {
	const query = `SELECT reference_number FROM valid_reference_numbers`
	rows, err := p.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// Lookup resolves a reference number to its supplier and, when registered,
// the supplier's coordinate template.
func (p *PGProvider) Lookup(ctx context.Context, referenceNumber string) (Supplier, bool, error) {
	const query = `
SELECT v.reference_number, v.supplier_id, v.supplier_name, t.coordinates
FROM valid_reference_numbers v
LEFT JOIN supplier_templates t ON t.supplier_id = v.supplier_id
WHERE UPPER(v.reference_number) = UPPER($1)
LIMIT 1`

	var s Supplier
	var template sql.NullString
	err := p.DB.QueryRowContext(ctx, query, referenceNumber).Scan(
		&s.ReferenceNumber,
		&s.SupplierID,
		&s.SupplierName,
		&template,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Supplier{}, false, nil
		}
		return Supplier{}, false, err
	}
	if template.Valid {
		s.Template = []byte(template.String)
	}
	return s, true, nil
}

var _ Provider = (*PGProvider)(nil)
