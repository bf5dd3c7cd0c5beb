package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Member tables
// ---------------------------------------------------------------------------

// member produces the value of a property for a receiver. Methods return a
// shared native; the receiver reaches it through the pointer stack.
type member func(recv Value) Value

func method(name string, arity int, fn NativeFunc) member {
	v := NewNative(name, arity, fn)
	return func(Value) Value { return v }
}

var stringMembers = map[string]member{
	"length": func(recv Value) Value { return Int(int64(utf8.RuneCountInString(recv.s))) },
	"charAt": method("charAt", 1, func(this Value, args []Value) (Value, error) {
		r, err := thisRunes(this, "charAt")
		if err != nil {
			return Undefined, err
		}
		i, ok := toIndex(args[0])
		if !ok || i >= len(r) {
			return String(""), nil
		}
		return String(string(r[i])), nil
	}),
	"charCodeAt": method("charCodeAt", 1, func(this Value, args []Value) (Value, error) {
		r, err := thisRunes(this, "charCodeAt")
		if err != nil {
			return Undefined, err
		}
		i, ok := toIndex(args[0])
		if !ok || i >= len(r) {
			return Float(math.NaN()), nil
		}
		return Int(int64(r[i])), nil
	}),
	"indexOf": method("indexOf", 1, func(this Value, args []Value) (Value, error) {
		if this.kind != KindString {
			return Undefined, incompatible("indexOf", this)
		}
		i := strings.Index(this.s, ToString(args[0]))
		if i < 0 {
			return Int(-1), nil
		}
		return Int(int64(utf8.RuneCountInString(this.s[:i]))), nil
	}),
	"slice": method("slice", 2, func(this Value, args []Value) (Value, error) {
		r, err := thisRunes(this, "slice")
		if err != nil {
			return Undefined, err
		}
		from, to := sliceBounds(len(r), args[0], args[1])
		return String(string(r[from:to])), nil
	}),
	"substring": method("substring", 2, func(this Value, args []Value) (Value, error) {
		r, err := thisRunes(this, "substring")
		if err != nil {
			return Undefined, err
		}
		clamp := func(v Value, def int) int {
			if v.IsUndefined() {
				return def
			}
			n := ToNumber(v).AsFloat()
			if math.IsNaN(n) || n < 0 {
				return 0
			}
			return int(math.Min(n, float64(len(r))))
		}
		from, to := clamp(args[0], 0), clamp(args[1], len(r))
		if from > to {
			from, to = to, from
		}
		return String(string(r[from:to])), nil
	}),
	"toUpperCase": method("toUpperCase", 0, func(this Value, _ []Value) (Value, error) {
		if this.kind != KindString {
			return Undefined, incompatible("toUpperCase", this)
		}
		return String(strings.ToUpper(this.s)), nil
	}),
	"toLowerCase": method("toLowerCase", 0, func(this Value, _ []Value) (Value, error) {
		if this.kind != KindString {
			return Undefined, incompatible("toLowerCase", this)
		}
		return String(strings.ToLower(this.s)), nil
	}),
	"trim": method("trim", 0, func(this Value, _ []Value) (Value, error) {
		if this.kind != KindString {
			return Undefined, incompatible("trim", this)
		}
		return String(strings.TrimSpace(this.s)), nil
	}),
	"split": method("split", 1, func(this Value, args []Value) (Value, error) {
		if this.kind != KindString {
			return Undefined, incompatible("split", this)
		}
		if args[0].IsUndefined() {
			return ArrayOf(this), nil
		}
		parts := strings.Split(this.s, ToString(args[0]))
		elems := make([]Value, len(parts))
		for i, p := range parts {
			elems[i] = String(p)
		}
		return ArrayOf(elems...), nil
	}),
	"toString": toStringMethod,
}

var arrayMembers = map[string]member{
	"length": func(recv Value) Value { return Int(int64(len(recv.Array().Elems))) },
	"push": method("push", -1, func(this Value, args []Value) (Value, error) {
		a := this.Array()
		if a == nil {
			return Undefined, incompatible("push", this)
		}
		a.Elems = append(a.Elems, args...)
		return Int(int64(len(a.Elems))), nil
	}),
	"pop": method("pop", 0, func(this Value, _ []Value) (Value, error) {
		a := this.Array()
		if a == nil {
			return Undefined, incompatible("pop", this)
		}
		if len(a.Elems) == 0 {
			return Undefined, nil
		}
		last := a.Elems[len(a.Elems)-1]
		a.Elems = a.Elems[:len(a.Elems)-1]
		return last, nil
	}),
	"join": method("join", 1, func(this Value, args []Value) (Value, error) {
		a := this.Array()
		if a == nil {
			return Undefined, incompatible("join", this)
		}
		sep := ","
		if !args[0].IsUndefined() {
			sep = ToString(args[0])
		}
		parts := make([]string, len(a.Elems))
		for i, e := range a.Elems {
			if !e.IsUndefined() && !e.IsNull() {
				parts[i] = ToString(e)
			}
		}
		return String(strings.Join(parts, sep)), nil
	}),
	"indexOf": method("indexOf", 1, func(this Value, args []Value) (Value, error) {
		a := this.Array()
		if a == nil {
			return Undefined, incompatible("indexOf", this)
		}
		for i, e := range a.Elems {
			if StrictEquals(e, args[0]) {
				return Int(int64(i)), nil
			}
		}
		return Int(-1), nil
	}),
	"includes": method("includes", 1, func(this Value, args []Value) (Value, error) {
		a := this.Array()
		if a == nil {
			return Undefined, incompatible("includes", this)
		}
		for _, e := range a.Elems {
			if StrictEquals(e, args[0]) {
				return Bool(true), nil
			}
		}
		return Bool(false), nil
	}),
	"slice": method("slice", 2, func(this Value, args []Value) (Value, error) {
		a := this.Array()
		if a == nil {
			return Undefined, incompatible("slice", this)
		}
		from, to := sliceBounds(len(a.Elems), args[0], args[1])
		return ArrayOf(append([]Value(nil), a.Elems[from:to]...)...), nil
	}),
	"toString": toStringMethod,
}

var objectMembers = map[string]member{
	"hasOwnProperty": method("hasOwnProperty", 1, func(this Value, args []Value) (Value, error) {
		o := this.Object()
		if o == nil {
			return Undefined, incompatible("hasOwnProperty", this)
		}
		_, ok := o.Get(ToString(args[0]))
		return Bool(ok), nil
	}),
	"toString": toStringMethod,
}

var numberMembers = map[string]member{
	"toFixed": method("toFixed", 1, func(this Value, args []Value) (Value, error) {
		if !this.IsNumber() {
			return Undefined, incompatible("toFixed", this)
		}
		digits := 0
		if !args[0].IsUndefined() {
			digits = int(ToNumber(args[0]).AsInt())
		}
		if digits < 0 || digits > 100 {
			return Undefined, fmt.Errorf("toFixed() digits argument must be between 0 and 100")
		}
		return String(strconv.FormatFloat(this.AsFloat(), 'f', digits, 64)), nil
	}),
	"toString": toStringMethod,
}

var toStringMethod = method("toString", 0, func(this Value, _ []Value) (Value, error) {
	return String(ToString(this)), nil
})

func incompatible(name string, this Value) error {
	return fmt.Errorf("%s called on incompatible receiver %s", name, TypeOf(this))
}

func thisRunes(this Value, name string) ([]rune, error) {
	if this.kind != KindString {
		return nil, incompatible(name, this)
	}
	return []rune(this.s), nil
}

// toIndex converts v to a non-negative integer index.
func toIndex(v Value) (int, bool) {
	switch v.kind {
	case KindInt:
		return int(v.n), v.n >= 0 && v.n <= math.MaxInt32
	case KindFloat:
		if v.f >= 0 && v.f <= math.MaxInt32 && v.f == math.Trunc(v.f) {
			return int(v.f), true
		}
	case KindString:
		if n, err := strconv.Atoi(v.s); err == nil && n >= 0 && strconv.Itoa(n) == v.s {
			return n, true
		}
	case KindUndefined:
		return 0, true
	}
	return 0, false
}

// sliceBounds resolves JS slice arguments (negative counts from the end).
func sliceBounds(n int, start, end Value) (int, int) {
	resolve := func(v Value, def int) int {
		if v.IsUndefined() {
			return def
		}
		f := ToNumber(v).AsFloat()
		if math.IsNaN(f) {
			return 0
		}
		i := int(math.Max(math.Min(f, float64(n)), float64(-n)))
		if i < 0 {
			i += n
		}
		return i
	}
	from, to := resolve(start, 0), resolve(end, n)
	if to < from {
		to = from
	}
	return from, to
}

// ---------------------------------------------------------------------------
// Property access
// ---------------------------------------------------------------------------

// GetProperty reads obj.name: own dictionary entries first, then the
// receiver kind's member table, then native element access.
func GetProperty(obj Value, name string) (Value, error) {
	switch obj.kind {
	case KindObject:
		if v, ok := obj.Object().Get(name); ok {
			return v, nil
		}
		if m, ok := objectMembers[name]; ok {
			return m(obj), nil
		}
		return Undefined, nil
	case KindArray:
		if m, ok := arrayMembers[name]; ok {
			return m(obj), nil
		}
		if i, ok := toIndex(String(name)); ok {
			return elementAt(obj.Array().Elems, i), nil
		}
	case KindString:
		if m, ok := stringMembers[name]; ok {
			return m(obj), nil
		}
		if i, ok := toIndex(String(name)); ok {
			r := []rune(obj.s)
			if i < len(r) {
				return String(string(r[i])), nil
			}
			return Undefined, nil
		}
	case KindInt, KindFloat:
		if m, ok := numberMembers[name]; ok {
			return m(obj), nil
		}
	case KindBool:
		if name == "toString" {
			return toStringMethod(obj), nil
		}
	case KindHost:
		return obj.HostObject().GetMember(name)
	case KindUndefined, KindNull:
		return Undefined, fmt.Errorf("cannot read property %q of %s", name, ToString(obj))
	}
	return Undefined, fmt.Errorf("%s has no property %q", TypeOf(obj), name)
}

// SetProperty writes obj.name = v.
func SetProperty(obj Value, name string, v Value) error {
	switch obj.kind {
	case KindObject:
		obj.Object().Set(name, v)
		return nil
	case KindArray:
		a := obj.Array()
		if name == "length" {
			n, ok := toIndex(v)
			if !ok {
				return fmt.Errorf("invalid array length %s", ToString(v))
			}
			resize(a, n)
			return nil
		}
		if i, ok := toIndex(String(name)); ok {
			setElement(a, i, v)
			return nil
		}
	case KindHost:
		return obj.HostObject().SetMember(name, v)
	case KindUndefined, KindNull:
		return fmt.Errorf("cannot set property %q of %s", name, ToString(obj))
	}
	return fmt.Errorf("cannot set property %q on %s", name, TypeOf(obj))
}

// GetIndex reads obj[key].
func GetIndex(obj, key Value) (Value, error) {
	switch obj.kind {
	case KindArray:
		if key.IsNumber() {
			i, ok := toIndex(key)
			if !ok {
				return Undefined, nil
			}
			return elementAt(obj.Array().Elems, i), nil
		}
	case KindString:
		if key.IsNumber() {
			i, ok := toIndex(key)
			r := []rune(obj.s)
			if !ok || i >= len(r) {
				return Undefined, nil
			}
			return String(string(r[i])), nil
		}
	}
	return GetProperty(obj, ToString(key))
}

// SetIndex writes obj[key] = v.
func SetIndex(obj, key, v Value) error {
	if obj.kind == KindArray && key.IsNumber() {
		i, ok := toIndex(key)
		if !ok {
			return fmt.Errorf("invalid array index %s", ToString(key))
		}
		setElement(obj.Array(), i, v)
		return nil
	}
	return SetProperty(obj, ToString(key), v)
}

func elementAt(elems []Value, i int) Value {
	if i < len(elems) {
		return elems[i]
	}
	return Undefined
}

func setElement(a *Array, i int, v Value) {
	if i >= len(a.Elems) {
		resize(a, i+1)
	}
	a.Elems[i] = v
}

func resize(a *Array, n int) {
	if n <= len(a.Elems) {
		clear(a.Elems[n:])
		a.Elems = a.Elems[:n]
		return
	}
	a.Elems = append(a.Elems, make([]Value, n-len(a.Elems))...)
}
