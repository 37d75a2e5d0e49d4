package refdata

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestMemoryProviderLookupIsCaseInsensitive(t *testing.T) {
	p := NewMemoryProvider()
	p.Add(Supplier{ReferenceNumber: "BA12345", SupplierID: "sup-1", SupplierName: "Müller GmbH"})

	s, found, err := p.Lookup(context.Background(), "  ba12345 ")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !found {
		t.Fatal("expected match")
	}
	if s.SupplierName != "Müller GmbH" {
		t.Errorf("SupplierName = %q", s.SupplierName)
	}

	if _, found, _ := p.Lookup(context.Background(), "BA99999"); found {
		t.Error("unknown reference must not match")
	}
}

func TestPGProviderValidReferences(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT reference_number FROM valid_reference_numbers`).
		WillReturnRows(sqlmock.NewRows([]string{"reference_number"}).
			AddRow("BA12345").
			AddRow("BA67890"))

	p := &PGProvider{DB: db}
	refs, err := p.ValidReferences(context.Background())
	if err != nil {
		t.Fatalf("ValidReferences: %v", err)
	}
	if len(refs) != 2 || refs[0] != "BA12345" {
		t.Errorf("refs = %v", refs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGProviderLookupWithTemplate(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT v.reference_number, v.supplier_id, v.supplier_name, t.coordinates`).
		WithArgs("ba12345").
		WillReturnRows(sqlmock.NewRows([]string{"reference_number", "supplier_id", "supplier_name", "coordinates"}).
			AddRow("BA12345", "sup-1", "Müller GmbH", `{"salesConfirmation":{"x":10,"y":20}}`))

	p := &PGProvider{DB: db}
	s, found, err := p.Lookup(context.Background(), "ba12345")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !found {
		t.Fatal("expected match")
	}
	if s.Template == nil {
		t.Error("template must be populated when registered")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGProviderLookupUnknown(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT v.reference_number, v.supplier_id, v.supplier_name, t.coordinates`).
		WithArgs("BA00000").
		WillReturnRows(sqlmock.NewRows([]string{"reference_number", "supplier_id", "supplier_name", "coordinates"}))

	p := &PGProvider{DB: db}
	_, found, err := p.Lookup(context.Background(), "BA00000")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if found {
		t.Error("unknown reference must report found=false")
	}
}
