package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// installBuiltins registers the global functions every script can see.
func (vm *VM) installBuiltins() {
	vm.globals["print"] = NewNative("print", -1, func(_ Value, args []Value) (Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = ToString(a)
		}
		_, err := fmt.Fprintln(vm.out, strings.Join(parts, " "))
		return Undefined, err
	})
	vm.globals["String"] = NewNative("String", 1, func(_ Value, args []Value) (Value, error) {
		return String(ToString(args[0])), nil
	})
	vm.globals["Number"] = NewNative("Number", 1, func(_ Value, args []Value) (Value, error) {
		return ToNumber(args[0]), nil
	})
	vm.globals["Boolean"] = NewNative("Boolean", 1, func(_ Value, args []Value) (Value, error) {
		return Bool(Truthy(args[0])), nil
	})
	vm.globals["isNaN"] = NewNative("isNaN", 1, func(_ Value, args []Value) (Value, error) {
		n := ToNumber(args[0])
		return Bool(n.kind == KindFloat && math.IsNaN(n.f)), nil
	})
	vm.globals["parseInt"] = NewNative("parseInt", 2, parseInt)
	vm.globals["Math"] = ObjectValue(mathObject())
	vm.globals["Object"] = ObjectValue(objectStatics())
	vm.globals["NaN"] = Float(math.NaN())
	vm.globals["Infinity"] = Float(math.Inf(1))
}

func parseInt(_ Value, args []Value) (Value, error) {
	s := strings.TrimSpace(ToString(args[0]))
	base := 10
	if !args[1].IsUndefined() {
		base = int(ToNumber(args[1]).AsInt())
	}
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	if (base == 16 || args[1].IsUndefined()) && len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s, base = s[2:], 16
	}
	if base < 2 || base > 36 {
		return Float(math.NaN()), nil
	}
	end := 0
	for end < len(s) {
		d, err := strconv.ParseInt(s[end:end+1], base, 64)
		if err != nil || d >= int64(base) {
			break
		}
		end++
	}
	if end == 0 {
		return Float(math.NaN()), nil
	}
	n, err := strconv.ParseInt(s[:end], base, 64)
	if err != nil {
		return Float(math.NaN()), nil
	}
	if neg {
		n = -n
	}
	return Int(n), nil
}

func mathObject() *Object {
	m := NewObject()
	unary := func(name string, f func(float64) float64) {
		m.Set(name, NewNative(name, 1, func(_ Value, args []Value) (Value, error) {
			return integral(f(ToNumber(args[0]).AsFloat())), nil
		}))
	}
	unary("floor", math.Floor)
	unary("ceil", math.Ceil)
	unary("round", func(x float64) float64 { return math.Floor(x + 0.5) })
	unary("trunc", math.Trunc)
	unary("abs", math.Abs)
	unary("sqrt", math.Sqrt)
	unary("sin", math.Sin)
	unary("cos", math.Cos)
	unary("log", math.Log)
	m.Set("pow", NewNative("pow", 2, func(_ Value, args []Value) (Value, error) {
		return Pow(args[0], args[1]), nil
	}))
	m.Set("max", NewNative("max", -1, extremum(math.Inf(-1), func(a, b float64) bool { return a > b })))
	m.Set("min", NewNative("min", -1, extremum(math.Inf(1), func(a, b float64) bool { return a < b })))
	m.Set("PI", Float(math.Pi))
	m.Set("E", Float(math.E))
	return m
}

// integral narrows whole floats back to ints so Math.floor(7/2) prints 3.
func integral(f float64) Value {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 && !(f == 0 && math.Signbit(f)) {
		return Int(int64(f))
	}
	return Float(f)
}

func extremum(start float64, better func(a, b float64) bool) NativeFunc {
	return func(_ Value, args []Value) (Value, error) {
		best := Float(start)
		for _, a := range args {
			n := ToNumber(a)
			if math.IsNaN(n.AsFloat()) {
				return Float(math.NaN()), nil
			}
			if better(n.AsFloat(), best.AsFloat()) {
				best = n
			}
		}
		return best, nil
	}
}

func objectStatics() *Object {
	o := NewObject()
	o.Set("keys", NewNative("keys", 1, func(_ Value, args []Value) (Value, error) {
		switch args[0].kind {
		case KindObject:
			keys := args[0].Object().Keys()
			elems := make([]Value, len(keys))
			for i, k := range keys {
				elems[i] = String(k)
			}
			return ArrayOf(elems...), nil
		case KindArray:
			n := len(args[0].Array().Elems)
			elems := make([]Value, n)
			for i := range elems {
				elems[i] = String(strconv.Itoa(i))
			}
			return ArrayOf(elems...), nil
		}
		return ArrayOf(), nil
	}))
	return o
}
