package vm

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindInt
	KindFloat
	KindString
	KindFunc   // script function, by index
	KindArray  // *Array, shared
	KindObject // *Object dictionary, shared
	KindHost   // HostObject adapter
	KindNative // *Native built-in or host function
)

var kindNames = [...]string{
	KindUndefined: "undefined",
	KindNull:      "null",
	KindBool:      "bool",
	KindInt:       "int",
	KindFloat:     "float",
	KindString:    "string",
	KindFunc:      "function",
	KindArray:     "array",
	KindObject:    "object",
	KindHost:      "host",
	KindNative:    "native",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Value is a script value. The zero Value is undefined. Primitives are
// immutable; arrays and dictionaries are shared by reference.
type Value struct {
	kind Kind
	n    int64   // int, bool (0/1), function index
	f    float64 // float
	s    string  // string
	ref  any     // *Array, *Object, HostObject, *Native
}

// Array is a growable list shared between all values that reference it.
type Array struct {
	Elems []Value
}

// Object is an insertion-ordered dictionary.
type Object struct {
	keys []string
	vals map[string]Value
}

// HostObject exposes a host value's members to scripts.
type HostObject interface {
	GetMember(name string) (Value, error)
	SetMember(name string, v Value) error
}

// NativeFunc implements a built-in or host function. this is the receiver
// when the function was reached through a property access, else undefined.
type NativeFunc func(this Value, args []Value) (Value, error)

// Native is a function implemented in Go. Arity -1 accepts any number of
// arguments; otherwise arguments are padded with undefined or truncated.
type Native struct {
	Name  string
	Arity int
	Fn    NativeFunc
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// Undefined is the undefined value.
var Undefined = Value{}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) Value {
	if b {
		return Value{kind: KindBool, n: 1}
	}
	return Value{kind: KindBool}
}

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, n: i} }

// Float returns a floating-point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// FuncRef returns a reference to the script function with the given index.
func FuncRef(index int) Value { return Value{kind: KindFunc, n: int64(index)} }

// ArrayOf returns a new array holding elems.
func ArrayOf(elems ...Value) Value {
	return Value{kind: KindArray, ref: &Array{Elems: elems}}
}

// NewObject creates an empty dictionary.
func NewObject() *Object {
	return &Object{vals: make(map[string]Value)}
}

// ObjectValue wraps a dictionary.
func ObjectValue(o *Object) Value { return Value{kind: KindObject, ref: o} }

// Host wraps a host object adapter.
func Host(h HostObject) Value { return Value{kind: KindHost, ref: h} }

// NativeValue wraps a native function.
func NativeValue(n *Native) Value { return Value{kind: KindNative, ref: n} }

// NewNative is a shorthand for NativeValue(&Native{...}).
func NewNative(name string, arity int, fn NativeFunc) Value {
	return NativeValue(&Native{Name: name, Arity: arity, Fn: fn})
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

func (v Value) Kind() Kind        { return v.kind }
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }
func (v Value) IsNull() bool      { return v.kind == KindNull }
func (v Value) IsNumber() bool    { return v.kind == KindInt || v.kind == KindFloat }
func (v Value) IsString() bool    { return v.kind == KindString }
func (v Value) IsCallable() bool  { return v.kind == KindFunc || v.kind == KindNative }

// AsInt returns the integer payload. Floats are truncated.
func (v Value) AsInt() int64 {
	if v.kind == KindFloat {
		return int64(v.f)
	}
	return v.n
}

// AsFloat returns the numeric payload as a float64.
func (v Value) AsFloat() float64 {
	if v.kind == KindInt {
		return float64(v.n)
	}
	return v.f
}

func (v Value) AsBool() bool     { return v.n != 0 }
func (v Value) AsString() string { return v.s }
func (v Value) FuncIndex() int   { return int(v.n) }

// Array returns the array payload or nil.
func (v Value) Array() *Array {
	a, _ := v.ref.(*Array)
	return a
}

// Object returns the dictionary payload or nil.
func (v Value) Object() *Object {
	o, _ := v.ref.(*Object)
	return o
}

// HostObject returns the host payload or nil.
func (v Value) HostObject() HostObject {
	if v.kind != KindHost {
		return nil
	}
	h, _ := v.ref.(HostObject)
	return h
}

// Native returns the native function payload or nil.
func (v Value) Native() *Native {
	n, _ := v.ref.(*Native)
	return n
}

// ---------------------------------------------------------------------------
// Object
// ---------------------------------------------------------------------------

// Get returns the value stored under key.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.vals[key]
	return v, ok
}

// Set stores a value, keeping first-insertion order.
func (o *Object) Set(key string, v Value) {
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
}

// Delete removes key.
func (o *Object) Delete(key string) {
	if _, ok := o.vals[key]; !ok {
		return
	}
	delete(o.vals, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	return append([]string(nil), o.keys...)
}

// Len returns the number of entries.
func (o *Object) Len() int { return len(o.keys) }

// ---------------------------------------------------------------------------
// Go interop
// ---------------------------------------------------------------------------

// FromGo converts a Go value into a script value. Supported: nil, bool,
// integers, floats, string, []any, map[string]any, Value, HostObject and
// NativeFunc.
func FromGo(x any) (Value, error) {
	switch x := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint32:
		return Int(int64(x)), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case string:
		return String(x), nil
	case []any:
		elems := make([]Value, len(x))
		for i, e := range x {
			v, err := FromGo(e)
			if err != nil {
				return Undefined, err
			}
			elems[i] = v
		}
		return ArrayOf(elems...), nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		o := NewObject()
		for _, k := range keys {
			v, err := FromGo(x[k])
			if err != nil {
				return Undefined, err
			}
			o.Set(k, v)
		}
		return ObjectValue(o), nil
	case HostObject:
		return Host(x), nil
	case NativeFunc:
		return NewNative("native", -1, x), nil
	}
	return Undefined, fmt.Errorf("vm: cannot convert %T to a script value", x)
}

// Interface converts a value back into plain Go data. Functions convert to
// nil.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.AsBool()
	case KindInt:
		return v.n
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindArray:
		a := v.Array()
		out := make([]any, len(a.Elems))
		for i, e := range a.Elems {
			out[i] = e.Interface()
		}
		return out
	case KindObject:
		o := v.Object()
		out := make(map[string]any, o.Len())
		for _, k := range o.keys {
			out[k] = o.vals[k].Interface()
		}
		return out
	case KindHost:
		return v.ref
	}
	return nil
}

// ---------------------------------------------------------------------------
// Printing
// ---------------------------------------------------------------------------

// String formats the value the way script string conversion does.
func (v Value) String() string {
	return ToString(v)
}

// Inspect formats the value for the REPL: strings are quoted and
// composites are shown structurally.
func Inspect(v Value) string {
	var b strings.Builder
	inspect(&b, v, 0)
	return b.String()
}

func inspect(b *strings.Builder, v Value, depth int) {
	if depth > 4 {
		b.WriteString("...")
		return
	}
	switch v.kind {
	case KindString:
		fmt.Fprintf(b, "%q", v.s)
	case KindArray:
		b.WriteString("[")
		for i, e := range v.Array().Elems {
			if i > 0 {
				b.WriteString(", ")
			}
			inspect(b, e, depth+1)
		}
		b.WriteString("]")
	case KindObject:
		o := v.Object()
		b.WriteString("{")
		for i, k := range o.keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "%s: ", k)
			inspect(b, o.vals[k], depth+1)
		}
		b.WriteString("}")
	case KindFunc:
		fmt.Fprintf(b, "[function #%d]", v.n)
	case KindNative:
		fmt.Fprintf(b, "[native %s]", v.Native().Name)
	case KindFloat:
		if math.IsNaN(v.f) {
			b.WriteString("NaN")
			return
		}
		b.WriteString(ToString(v))
	default:
		b.WriteString(ToString(v))
	}
}
