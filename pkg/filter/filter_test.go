package filter

import "testing"

func TestApplyEmptyFilterPasses(t *testing.T) {
	ok, err := Apply(map[string]any{"status": "active"}, nil)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v, want true,nil", ok, err)
	}
}

func TestApplyDualLeafSpellings(t *testing.T) {
	row := map[string]any{"status": "active"}
	f1 := Filter{"status": map[string]any{"eq": "active"}}
	f2 := Filter{"eq": map[string]any{"status": "active"}}

	ok1, err := Apply(row, f1)
	if err != nil || !ok1 {
		t.Fatalf("field-op spelling: ok=%v err=%v", ok1, err)
	}
	ok2, err := Apply(row, f2)
	if err != nil || !ok2 {
		t.Fatalf("op-field spelling: ok=%v err=%v", ok2, err)
	}
}

func TestApplyImplicitEqBareField(t *testing.T) {
	row := map[string]any{"status": "active"}
	ok, err := Apply(row, Filter{"status": "active"})
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestApplyNullEqualsNull(t *testing.T) {
	row := map[string]any{}
	ok, err := Apply(row, Filter{"missing": map[string]any{"eq": nil}})
	if err != nil || !ok {
		t.Fatalf("NULL==NULL should be true, got ok=%v err=%v", ok, err)
	}
}

func TestApplyComparisonAgainstNullIsFalse(t *testing.T) {
	row := map[string]any{}
	ok, err := Apply(row, Filter{"age": map[string]any{"gt": 10}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("comparison against missing/NULL field should be false")
	}
}

func TestApplyImplicitAndAcrossSiblings(t *testing.T) {
	row := map[string]any{"status": "active", "age": 30}
	f := Filter{
		"status": map[string]any{"eq": "active"},
		"age":    map[string]any{"gte": 18},
	}
	ok, err := Apply(row, f)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}

	row2 := map[string]any{"status": "active", "age": 10}
	ok2, err := Apply(row2, f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok2 {
		t.Error("implicit AND should reject when one sibling fails")
	}
}

func TestApplyAndOverEmptyListIsTrue(t *testing.T) {
	ok, err := Apply(map[string]any{}, Filter{"and": []any{}})
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v, want true", ok, err)
	}
}

func TestApplyOrOverEmptyListIsFalse(t *testing.T) {
	ok, err := Apply(map[string]any{}, Filter{"or": []any{}})
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v, want false", ok, err)
	}
}

func TestApplyNotNegates(t *testing.T) {
	row := map[string]any{"status": "banned"}
	ok, err := Apply(row, Filter{"not": map[string]any{"status": map[string]any{"eq": "active"}}})
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestApplyDoubleNotIsIdentity(t *testing.T) {
	row := map[string]any{"status": "active"}
	f := Filter{"status": map[string]any{"eq": "active"}}
	base, _ := Apply(row, f)
	doubled, err := Apply(row, Filter{"not": map[string]any{"not": map[string]any{"status": map[string]any{"eq": "active"}}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doubled != base {
		t.Errorf("not(not(F)) = %v, want %v", doubled, base)
	}
}

func TestApplyPureRepeatedEvaluation(t *testing.T) {
	row := map[string]any{"status": "active"}
	f := Filter{"status": map[string]any{"eq": "active"}}
	a, err1 := Apply(row, f)
	b, err2 := Apply(row, f)
	if err1 != nil || err2 != nil || a != b {
		t.Fatalf("filter is not pure: a=%v err1=%v b=%v err2=%v", a, err1, b, err2)
	}
}

func TestApplyTypeMismatchComparisonIsFalse(t *testing.T) {
	row := map[string]any{"age": "not-a-number"}
	ok, err := Apply(row, Filter{"age": map[string]any{"gt": 10}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("cross-type comparison should be false, not true")
	}
}

func TestValidateRejectsAndNotAList(t *testing.T) {
	err := Validate(Filter{"and": map[string]any{"x": 1}})
	if err == nil {
		t.Fatal("expected MalformedFilterError")
	}
	if _, ok := err.(*MalformedFilterError); !ok {
		t.Errorf("err = %T, want *MalformedFilterError", err)
	}
}

func TestValidateRejectsNotNotObject(t *testing.T) {
	err := Validate(Filter{"not": []any{1, 2}})
	if err == nil {
		t.Fatal("expected MalformedFilterError")
	}
}

func TestValidateAcceptsWellFormed(t *testing.T) {
	f := Filter{
		"and": []any{
			map[string]any{"status": map[string]any{"eq": "active"}},
			map[string]any{"age": map[string]any{"gte": 18}},
		},
	}
	if err := Validate(f); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
