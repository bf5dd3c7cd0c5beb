package vm

import (
	"math"
	"math/bits"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

// Truthy reports whether v counts as true in a condition.
func Truthy(v Value) bool {
	switch v.kind {
	case KindUndefined, KindNull:
		return false
	case KindBool:
		return v.n != 0
	case KindInt:
		return v.n != 0
	case KindFloat:
		return v.f != 0 && !math.IsNaN(v.f)
	case KindString:
		return v.s != ""
	}
	return true
}

// ToNumber converts v to an int or float value.
func ToNumber(v Value) Value {
	switch v.kind {
	case KindInt, KindFloat:
		return v
	case KindNull:
		return Int(0)
	case KindBool:
		return Int(v.n)
	case KindString:
		return parseNumber(v.s)
	case KindArray:
		a := v.Array()
		switch len(a.Elems) {
		case 0:
			return Int(0)
		case 1:
			return ToNumber(String(ToString(a.Elems[0])))
		}
	}
	return Float(math.NaN())
}

func parseNumber(s string) Value {
	s = strings.TrimSpace(s)
	if s == "" {
		return Int(0)
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if i, err := strconv.ParseInt(s[2:], 16, 64); err == nil {
			return Int(i)
		}
		return Float(math.NaN())
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(i)
	}
	switch s {
	case "Infinity", "+Infinity":
		return Float(math.Inf(1))
	case "-Infinity":
		return Float(math.Inf(-1))
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || strings.ContainsAny(s, "_xXpP") || strings.EqualFold(s, "inf") || strings.EqualFold(s, "nan") {
		return Float(math.NaN())
	}
	return Float(f)
}

// ToString converts v to its string form.
func ToString(v Value) string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		if v.n != 0 {
			return "true"
		}
		return "false"
	case KindInt:
		return strconv.FormatInt(v.n, 10)
	case KindFloat:
		return formatFloat(v.f)
	case KindString:
		return v.s
	case KindArray:
		elems := v.Array().Elems
		parts := make([]string, len(elems))
		for i, e := range elems {
			if e.kind != KindUndefined && e.kind != KindNull {
				parts[i] = ToString(e)
			}
		}
		return strings.Join(parts, ",")
	case KindObject, KindHost:
		return "[object Object]"
	case KindFunc:
		return "function"
	case KindNative:
		return "function " + v.Native().Name + "() { [native code] }"
	}
	return ""
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	s = strings.Replace(s, "e-0", "e-", 1)
	return strings.Replace(s, "e+0", "e+", 1)
}

// TypeOf returns the typeof name of v.
func TypeOf(v Value) string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindBool:
		return "boolean"
	case KindInt, KindFloat:
		return "number"
	case KindString:
		return "string"
	case KindFunc, KindNative:
		return "function"
	}
	return "object"
}

func toInt32(v Value) int32 {
	n := ToNumber(v)
	if n.kind == KindInt {
		return int32(n.n)
	}
	f := n.f
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int32(int64(math.Trunc(math.Mod(f, 1<<32))))
}

func number(v Value) Value {
	if v.kind == KindInt || v.kind == KindFloat {
		return v
	}
	return ToNumber(v)
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

// Add implements +: string concatenation when either side is a string or a
// composite, numeric addition otherwise.
func Add(a, b Value) Value {
	if a.kind == KindInt && b.kind == KindInt {
		if s, carry := addInt(a.n, b.n); !carry {
			return Int(s)
		}
		return Float(float64(a.n) + float64(b.n))
	}
	if isStringy(a) || isStringy(b) {
		return String(ToString(a) + ToString(b))
	}
	return numeric(a, b, addInt, func(x, y float64) float64 { return x + y })
}

func isStringy(v Value) bool {
	switch v.kind {
	case KindString, KindArray, KindObject, KindHost, KindFunc, KindNative:
		return true
	}
	return false
}

func addInt(x, y int64) (int64, bool) {
	s := x + y
	return s, (x >= 0) == (y >= 0) && (s >= 0) != (x >= 0)
}

func subInt(x, y int64) (int64, bool) {
	s := x - y
	return s, (x >= 0) != (y >= 0) && (s >= 0) != (x >= 0)
}

func mulInt(x, y int64) (int64, bool) {
	if x == 0 || y == 0 {
		return 0, false
	}
	hi, lo := bits.Mul64(uint64(absInt(x)), uint64(absInt(y)))
	if hi != 0 || lo > math.MaxInt64 || x == math.MinInt64 || y == math.MinInt64 {
		return 0, true
	}
	r := int64(lo)
	if (x < 0) != (y < 0) {
		r = -r
	}
	return r, false
}

func absInt(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

// numeric applies an integer operation when both operands are integers and
// it does not overflow, else the float operation.
func numeric(a, b Value, iop func(x, y int64) (int64, bool), fop func(x, y float64) float64) Value {
	a, b = number(a), number(b)
	if a.kind == KindInt && b.kind == KindInt && iop != nil {
		if r, overflow := iop(a.n, b.n); !overflow {
			return Int(r)
		}
	}
	return Float(fop(a.AsFloat(), b.AsFloat()))
}

// Sub implements -.
func Sub(a, b Value) Value {
	return numeric(a, b, subInt, func(x, y float64) float64 { return x - y })
}

// Mul implements *.
func Mul(a, b Value) Value {
	return numeric(a, b, mulInt, func(x, y float64) float64 { return x * y })
}

// Div implements /. Exact integer quotients stay integers.
func Div(a, b Value) Value {
	return numeric(a, b, func(x, y int64) (int64, bool) {
		if y == 0 || x%y != 0 || (x == math.MinInt64 && y == -1) {
			return 0, true
		}
		return x / y, false
	}, func(x, y float64) float64 { return x / y })
}

// Mod implements %. The result takes the sign of the dividend.
func Mod(a, b Value) Value {
	return numeric(a, b, func(x, y int64) (int64, bool) {
		if y == 0 || (x == math.MinInt64 && y == -1) {
			return 0, true
		}
		return x % y, false
	}, math.Mod)
}

// Pow implements **.
func Pow(a, b Value) Value {
	return numeric(a, b, func(x, y int64) (int64, bool) {
		switch {
		case y < 0:
			return 0, true
		case x == -1:
			return 1 - 2*(y&1), false
		}
		r := int64(1)
		for i := int64(0); i < y; i++ {
			var overflow bool
			r, overflow = mulInt(r, x)
			if overflow {
				return 0, true
			}
			if r == 0 || r == 1 && x == 1 {
				return r, false
			}
		}
		return r, false
	}, math.Pow)
}

// Neg implements unary minus.
func Neg(v Value) Value {
	v = number(v)
	if v.kind == KindInt && v.n != math.MinInt64 {
		if v.n == 0 {
			return Int(0)
		}
		return Int(-v.n)
	}
	return Float(-v.AsFloat())
}

// ---------------------------------------------------------------------------
// Bitwise
// ---------------------------------------------------------------------------

func BitAnd(a, b Value) Value { return Int(int64(toInt32(a) & toInt32(b))) }
func BitOr(a, b Value) Value  { return Int(int64(toInt32(a) | toInt32(b))) }
func BitXor(a, b Value) Value { return Int(int64(toInt32(a) ^ toInt32(b))) }
func BitNot(a Value) Value    { return Int(int64(^toInt32(a))) }

func Shl(a, b Value) Value {
	return Int(int64(toInt32(a) << (uint32(toInt32(b)) & 31)))
}

func Shr(a, b Value) Value {
	return Int(int64(toInt32(a) >> (uint32(toInt32(b)) & 31)))
}

func UShr(a, b Value) Value {
	return Int(int64(uint32(toInt32(a)) >> (uint32(toInt32(b)) & 31)))
}

// ---------------------------------------------------------------------------
// Equality and comparison
// ---------------------------------------------------------------------------

// StrictEquals implements ===. Numbers compare by value across int and
// float, composites by identity.
func StrictEquals(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		if a.kind == KindInt && b.kind == KindInt {
			return a.n == b.n
		}
		return a.AsFloat() == b.AsFloat()
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindUndefined, KindNull:
		return true
	case KindBool, KindFunc:
		return a.n == b.n
	case KindString:
		return a.s == b.s
	case KindArray:
		return a.Array() == b.Array()
	case KindObject:
		return a.Object() == b.Object()
	case KindNative:
		return a.Native() == b.Native()
	case KindHost:
		return a.ref == b.ref
	}
	return false
}

// LooseEquals implements == with the usual coercions.
func LooseEquals(a, b Value) bool {
	if a.kind == b.kind || a.IsNumber() && b.IsNumber() {
		return StrictEquals(a, b)
	}
	nullish := func(v Value) bool { return v.kind == KindUndefined || v.kind == KindNull }
	if nullish(a) || nullish(b) {
		return nullish(a) && nullish(b)
	}
	if a.kind == KindBool {
		return LooseEquals(Int(a.n), b)
	}
	if b.kind == KindBool {
		return LooseEquals(a, Int(b.n))
	}
	if a.IsNumber() && b.kind == KindString {
		return StrictEquals(a, parseNumber(b.s))
	}
	if a.kind == KindString && b.IsNumber() {
		return StrictEquals(parseNumber(a.s), b)
	}
	if isComposite(a) && !isComposite(b) {
		return LooseEquals(String(ToString(a)), b)
	}
	if isComposite(b) && !isComposite(a) {
		return LooseEquals(a, String(ToString(b)))
	}
	return false
}

func isComposite(v Value) bool {
	return v.kind == KindArray || v.kind == KindObject || v.kind == KindHost
}

// Compare orders a and b for < <= > >=. ok is false when the values are
// unordered (NaN involved).
func Compare(a, b Value) (cmp int, ok bool) {
	if a.kind == KindString && b.kind == KindString {
		return strings.Compare(a.s, b.s), true
	}
	if isComposite(a) {
		a = String(ToString(a))
	}
	if isComposite(b) {
		b = String(ToString(b))
	}
	if a.kind == KindString && b.kind == KindString {
		return strings.Compare(a.s, b.s), true
	}
	a, b = number(a), number(b)
	if a.kind == KindInt && b.kind == KindInt {
		switch {
		case a.n < b.n:
			return -1, true
		case a.n > b.n:
			return 1, true
		}
		return 0, true
	}
	x, y := a.AsFloat(), b.AsFloat()
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return 0, false
	case x < y:
		return -1, true
	case x > y:
		return 1, true
	}
	return 0, true
}
