package schema

import (
	"errors"
	"testing"
)

func testSchema() Schema {
	return Schema{Fields: []Field{
		{Name: "age", Kind: KindNumeric, Median: 54, MissingFlag: true},
		{Name: "bmi", Kind: KindNumeric, Median: 27.4},
		{Name: "smoker", Kind: KindCategorical, Categories: []string{"No", "Yes"}},
		{Name: "icd_code", Kind: KindCategorical, Categories: []string{"E11.9", "I50.9", "J44.1"}, MissingFlag: true},
		{Name: "label_eligible", Kind: KindBoolean},
	}}
}

func TestTransformKnownRow(t *testing.T) {
	tr, err := NewTransformer(testSchema())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	row := Row{"age": 72, "bmi": 33.5, "smoker": "Yes", "icd_code": "J44.1", "label_eligible": true}
	vector, err := tr.Transform(row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vector) != tr.Width() {
		t.Fatalf("expected width %d, got %d", tr.Width(), len(vector))
	}
	// age, age_missing, bmi, smoker(No,Yes,unk), icd(E11.9,I50.9,J44.1,unk), icd_missing, eligible
	want := []float64{72, 0, 33.5, 0, 1, 0, 0, 0, 1, 0, 0, 1}
	for i := range want {
		if vector[i] != want[i] {
			t.Fatalf("slot %d: expected %v, got %v (vector %v)", i, want[i], vector[i], vector)
		}
	}
}

func TestTransformMissingFields(t *testing.T) {
	tr, err := NewTransformer(testSchema())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vector, err := tr.Transform(Row{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vector[0] != 54 {
		t.Fatalf("expected median imputation for age, got %v", vector[0])
	}
	if vector[1] != 1 {
		t.Fatalf("expected missing flag set for age")
	}
	// smoker slots: No, Yes, unknown
	if vector[3] != 0 || vector[4] != 0 || vector[5] != 1 {
		t.Fatalf("expected unknown bucket for missing smoker, got %v", vector[3:6])
	}
}

func TestTransformUnseenCategory(t *testing.T) {
	tr, err := NewTransformer(testSchema())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vector, err := tr.Transform(Row{"icd_code": "Z00.999"})
	if err != nil {
		t.Fatalf("unseen category must not fail: %v", err)
	}
	// icd slots start after age, age_missing, bmi, smoker(3)
	icd := vector[6:10]
	if icd[0] != 0 || icd[1] != 0 || icd[2] != 0 || icd[3] != 1 {
		t.Fatalf("expected unknown bucket for unseen icd_code, got %v", icd)
	}
	if vector[10] != 0 {
		t.Fatalf("unseen value is present, missing flag must stay 0")
	}
}

func TestTransformIdempotent(t *testing.T) {
	tr, err := NewTransformer(testSchema())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	row := Row{"age": "61", "smoker": "No", "icd_code": "I50.9"}
	first, err := tr.Transform(row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := tr.Transform(row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("vector length changed between transforms")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("slot %d differs between transforms: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestTransformNilRow(t *testing.T) {
	tr, err := NewTransformer(testSchema())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := tr.Transform(nil); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestTransformUnparseableNumeric(t *testing.T) {
	tr, err := NewTransformer(testSchema())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vector, err := tr.Transform(Row{"age": "not a number"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vector[0] != 54 {
		t.Fatalf("expected median for unparseable age, got %v", vector[0])
	}
	if vector[1] != 1 {
		t.Fatalf("expected missing flag for unparseable age")
	}
}

func TestValidateRejectsBadSchema(t *testing.T) {
	bad := Schema{Fields: []Field{
		{Name: "smoker", Kind: KindCategorical},
	}}
	if _, err := NewTransformer(bad); err == nil {
		t.Fatal("expected error for categorical field without categories")
	}

	dup := Schema{Fields: []Field{
		{Name: "age", Kind: KindNumeric},
		{Name: "age", Kind: KindNumeric},
	}}
	if _, err := NewTransformer(dup); err == nil {
		t.Fatal("expected error for duplicate field")
	}
}
