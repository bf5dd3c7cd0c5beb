package vm

import (
	"math"
	"testing"
)

func TestToString(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Undefined, "undefined"},
		{Null(), "null"},
		{Bool(true), "true"},
		{Int(-42), "-42"},
		{Float(0.1), "0.1"},
		{Float(3.5), "3.5"},
		{Float(1e21), "1e+21"},
		{Float(1e-7), "1e-7"},
		{Float(math.NaN()), "NaN"},
		{Float(math.Inf(-1)), "-Infinity"},
		{String("hi"), "hi"},
		{ArrayOf(Int(1), Undefined, String("x")), "1,,x"},
		{ObjectValue(NewObject()), "[object Object]"},
	}
	for _, tt := range tests {
		if got := ToString(tt.v); got != tt.want {
			t.Errorf("ToString(%s) = %q, want %q", Inspect(tt.v), got, tt.want)
		}
	}
}

func TestToNumber(t *testing.T) {
	tests := []struct {
		in   Value
		want float64
	}{
		{String(" 42 "), 42},
		{String("0x10"), 16},
		{String("1.5e2"), 150},
		{String(""), 0},
		{Null(), 0},
		{Bool(true), 1},
		{ArrayOf(String("7")), 7},
	}
	for _, tt := range tests {
		if got := ToNumber(tt.in).AsFloat(); got != tt.want {
			t.Errorf("ToNumber(%s) = %v, want %v", Inspect(tt.in), got, tt.want)
		}
	}
	for _, s := range []string{"abc", "1_000", "inf", "12px"} {
		if got := ToNumber(String(s)).AsFloat(); !math.IsNaN(got) {
			t.Errorf("ToNumber(%q) = %v, want NaN", s, got)
		}
	}
}

func TestArithmeticKinds(t *testing.T) {
	if v := Add(Int(math.MaxInt64), Int(1)); v.Kind() != KindFloat {
		t.Errorf("overflowing add kind = %s, want float", v.Kind())
	}
	if v := Mul(Int(3), Int(4)); v.Kind() != KindInt || v.AsInt() != 12 {
		t.Errorf("3 * 4 = %s, want int 12", Inspect(v))
	}
	if v := Div(Int(1), Int(0)); !math.IsInf(v.AsFloat(), 1) {
		t.Errorf("1 / 0 = %s, want Infinity", Inspect(v))
	}
	if v := Pow(Int(-1), Int(1<<40+1)); v.AsInt() != -1 {
		t.Errorf("(-1) ** odd = %s, want -1", Inspect(v))
	}
	if v := Add(String("a"), Int(1)); v.AsString() != "a1" {
		t.Errorf(`"a" + 1 = %s, want "a1"`, Inspect(v))
	}
	if v := Sub(String("5"), Int(2)); v.AsInt() != 3 {
		t.Errorf(`"5" - 2 = %s, want 3`, Inspect(v))
	}
}

func TestEquality(t *testing.T) {
	arr := ArrayOf()
	tests := []struct {
		a, b          Value
		loose, strict bool
	}{
		{Int(1), Float(1), true, true},
		{Int(1), String("1"), true, false},
		{Bool(true), Int(1), true, false},
		{Null(), Undefined, true, false},
		{Null(), Int(0), false, false},
		{arr, arr, true, true},
		{arr, ArrayOf(), false, false},
		{Float(math.NaN()), Float(math.NaN()), false, false},
	}
	for _, tt := range tests {
		if got := LooseEquals(tt.a, tt.b); got != tt.loose {
			t.Errorf("%s == %s = %v, want %v", Inspect(tt.a), Inspect(tt.b), got, tt.loose)
		}
		if got := StrictEquals(tt.a, tt.b); got != tt.strict {
			t.Errorf("%s === %s = %v, want %v", Inspect(tt.a), Inspect(tt.b), got, tt.strict)
		}
	}
}

func TestCompare(t *testing.T) {
	if cmp, ok := Compare(String("a"), String("b")); !ok || cmp >= 0 {
		t.Errorf(`Compare("a", "b") = %d, %v`, cmp, ok)
	}
	if cmp, ok := Compare(String("10"), Int(9)); !ok || cmp <= 0 {
		t.Errorf(`Compare("10", 9) = %d, %v`, cmp, ok)
	}
	if _, ok := Compare(Float(math.NaN()), Int(1)); ok {
		t.Error("Compare(NaN, 1) should be unordered")
	}
}

func TestObjectOrder(t *testing.T) {
	o := NewObject()
	o.Set("b", Int(1))
	o.Set("a", Int(2))
	o.Set("b", Int(3))
	o.Delete("a")
	o.Set("c", Int(4))
	keys := o.Keys()
	if len(keys) != 2 || keys[0] != "b" || keys[1] != "c" {
		t.Errorf("Keys() = %v, want [b c]", keys)
	}
	if v, _ := o.Get("b"); v.AsInt() != 3 {
		t.Errorf("b = %s, want 3", Inspect(v))
	}
}

func TestFromGo(t *testing.T) {
	v, err := FromGo(map[string]any{"n": 1, "list": []any{"x", true}})
	if err != nil {
		t.Fatalf("FromGo: %v", err)
	}
	if got := Inspect(v); got != `{list: ["x", true], n: 1}` {
		t.Errorf("Inspect = %s", got)
	}
	back, ok := v.Interface().(map[string]any)
	if !ok || back["n"] != int64(1) {
		t.Errorf("Interface() = %#v", v.Interface())
	}
	if _, err := FromGo(struct{}{}); err == nil {
		t.Error("FromGo(struct{}{}) should fail")
	}
}

type point struct{ x, y int64 }

func (p *point) GetMember(name string) (Value, error) {
	switch name {
	case "x":
		return Int(p.x), nil
	case "y":
		return Int(p.y), nil
	}
	return Undefined, nil
}

func (p *point) SetMember(name string, v Value) error {
	if name == "x" {
		p.x = v.AsInt()
	}
	return nil
}

func TestPropertyAccess(t *testing.T) {
	p := &point{x: 1, y: 2}
	h := Host(p)
	if err := SetProperty(h, "x", Int(9)); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}
	if v, _ := GetProperty(h, "x"); v.AsInt() != 9 {
		t.Errorf("host x = %s, want 9", Inspect(v))
	}

	arr := ArrayOf(Int(1), Int(2), Int(3))
	if err := SetProperty(arr, "length", Int(1)); err != nil {
		t.Fatalf("set length: %v", err)
	}
	if n := len(arr.Array().Elems); n != 1 {
		t.Errorf("len after truncation = %d, want 1", n)
	}
	if err := SetIndex(arr, Int(-1), Int(0)); err == nil {
		t.Error("negative index store should fail")
	}
	if _, err := GetProperty(Undefined, "x"); err == nil {
		t.Error("reading a property of undefined should fail")
	}
	if v, err := GetIndex(String("héllo"), Int(1)); err != nil || v.AsString() != "é" {
		t.Errorf(`"héllo"[1] = %s, %v`, Inspect(v), err)
	}
}
