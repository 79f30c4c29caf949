package graph

import (
	"errors"
	"testing"
)

func TestValuePendingAndErrored(t *testing.T) {
	reg := NewTypeRegistry()
	id := reg.TypeOf((*int)(nil))

	p := Pending(id)
	if !p.IsPending() {
		t.Fatal("expected Pending sentinel")
	}
	if _, ok := p.IsErrored(); ok {
		t.Fatal("Pending must not report as Errored")
	}

	detail := errors.New("boom")
	e := Errored(id, detail)
	if !(func() bool { err, ok := e.IsErrored(); return ok && errors.Is(err, detail) })() {
		t.Fatal("expected Errored sentinel wrapping detail")
	}
	if e.IsPending() {
		t.Fatal("Errored must not report as Pending")
	}
}

func TestValueAsSuccess(t *testing.T) {
	reg := NewTypeRegistry()
	id := reg.TypeOf((*string)(nil))
	v := NewValue(id, "hello", nil)

	got, err := As[string](reg, v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestValueAsTypeMismatch(t *testing.T) {
	reg := NewTypeRegistry()
	id := reg.TypeOf((*string)(nil))
	v := NewValue(id, "hello", nil)

	_, err := As[int](reg, v)
	if err == nil {
		t.Fatal("expected type mismatch error")
	}
	var mismatch *TypeMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected *TypeMismatchError, got %T", err)
	}
}

func TestValueAsPendingAndErrored(t *testing.T) {
	reg := NewTypeRegistry()
	id := reg.TypeOf((*int)(nil))

	_, err := As[int](reg, Pending(id))
	if !errors.Is(err, ErrPendingValue) {
		t.Fatalf("expected ErrPendingValue, got %v", err)
	}

	detail := errors.New("failed upstream")
	_, err = As[int](reg, Errored(id, detail))
	if !errors.Is(err, ErrErroredValue) {
		t.Fatalf("expected ErrErroredValue, got %v", err)
	}
}

type cloneableSlice []int

func (s cloneableSlice) Clone() any {
	out := make(cloneableSlice, len(s))
	copy(out, s)
	return out
}

func TestValueCloneUsesCloner(t *testing.T) {
	reg := NewTypeRegistry()
	id := reg.TypeOf((*cloneableSlice)(nil))
	orig := cloneableSlice{1, 2, 3}
	v := NewValue(id, orig, nil)

	cloned := v.Clone()
	cs, ok := cloned.Raw().(cloneableSlice)
	if !ok {
		t.Fatalf("expected cloneableSlice payload, got %T", cloned.Raw())
	}
	cs[0] = 99
	if orig[0] == 99 {
		t.Fatal("clone must not alias the original backing array")
	}
}

func TestValueCloneIsNoopWithoutCloner(t *testing.T) {
	reg := NewTypeRegistry()
	id := reg.TypeOf((*int)(nil))
	v := NewValue(id, 7, nil)

	cloned := v.Clone()
	if cloned.Raw() != 7 {
		t.Fatalf("expected payload preserved, got %v", cloned.Raw())
	}
}

func TestValueEqualComparable(t *testing.T) {
	reg := NewTypeRegistry()
	id := reg.TypeOf((*int)(nil))
	a := NewValue(id, 5, nil)
	b := NewValue(id, 5, nil)
	c := NewValue(id, 6, nil)

	if !a.Equal(b) {
		t.Fatal("expected equal values to compare equal")
	}
	if a.Equal(c) {
		t.Fatal("expected different values to compare unequal")
	}
}

func TestValueEqualUsesInjectedFunc(t *testing.T) {
	reg := NewTypeRegistry()
	id := reg.TypeOf((*[]int)(nil))
	eq := func(a, b any) bool {
		as, bs := a.([]int), b.([]int)
		if len(as) != len(bs) {
			return false
		}
		for i := range as {
			if as[i] != bs[i] {
				return false
			}
		}
		return true
	}
	a := NewValue(id, []int{1, 2}, eq)
	b := NewValue(id, []int{1, 2}, eq)
	if !a.Equal(b) {
		t.Fatal("expected injected equality function to report equal slices")
	}
}

func TestValueEqualRecoversFromUncomparablePanic(t *testing.T) {
	reg := NewTypeRegistry()
	id := reg.TypeOf((*[]int)(nil))
	a := NewValue(id, []int{1, 2}, nil)
	b := NewValue(id, []int{1, 2}, nil)

	if a.Equal(b) {
		t.Fatal("expected uncomparable slice payload to degrade to not-equal rather than panic")
	}
}

func TestValueEqualDifferentTypeIDsAlwaysUnequal(t *testing.T) {
	reg := NewTypeRegistry()
	intID := reg.TypeOf((*int)(nil))
	strID := reg.TypeOf((*string)(nil))
	a := NewValue(intID, 1, nil)
	b := NewValue(strID, "1", nil)

	if a.Equal(b) {
		t.Fatal("values of different ValueTypeId must never compare equal")
	}
}

func TestValueEqualSentinelsComparePure(t *testing.T) {
	reg := NewTypeRegistry()
	id := reg.TypeOf((*int)(nil))

	if !Pending(id).Equal(Pending(id)) {
		t.Fatal("two Pending sentinels of the same type should compare equal")
	}
	if Pending(id).Equal(Errored(id, errors.New("x"))) {
		t.Fatal("Pending and Errored must not compare equal")
	}
}
