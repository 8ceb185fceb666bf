package calc

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// number keeps integer precision until an operation forces a float.
type number struct {
	i     int64
	f     float64
	isInt bool
}

func intNumber(v int64) number     { return number{i: v, isInt: true} }
func floatNumber(v float64) number { return number{f: v} }

func (n number) float() float64 {
	if n.isInt {
		return float64(n.i)
	}
	return n.f
}

func (n number) isZero() bool {
	if n.isInt {
		return n.i == 0
	}
	return n.f == 0
}

func (n number) neg() number {
	if n.isInt {
		if n.i == math.MinInt64 {
			return floatNumber(-float64(n.i))
		}
		return intNumber(-n.i)
	}
	return floatNumber(-n.f)
}

// String renders integers in base 10 and floats with the shortest
// round-trip representation, always keeping a fractional part.
func (n number) String() string {
	if n.isInt {
		return strconv.FormatInt(n.i, 10)
	}
	abs := math.Abs(n.f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(n.f, 'g', -1, 64)
	}
	s := strconv.FormatFloat(n.f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

type binaryOp func(a, b number) (number, error)

var binaryOps = map[string]binaryOp{
	"+":  add,
	"-":  sub,
	"*":  mul,
	"/":  div,
	"%":  mod,
	"**": pow,
}

func add(a, b number) (number, error) {
	if a.isInt && b.isInt {
		c := a.i + b.i
		if (c > a.i) == (b.i > 0) {
			return intNumber(c), nil
		}
	}
	return floatNumber(a.float() + b.float()), nil
}

func sub(a, b number) (number, error) {
	if a.isInt && b.isInt {
		c := a.i - b.i
		if (c < a.i) == (b.i > 0) {
			return intNumber(c), nil
		}
	}
	return floatNumber(a.float() - b.float()), nil
}

func mul(a, b number) (number, error) {
	if a.isInt && b.isInt {
		if c, ok := mulInt(a.i, b.i); ok {
			return intNumber(c), nil
		}
	}
	return floatNumber(a.float() * b.float()), nil
}

func div(a, b number) (number, error) {
	if b.isZero() {
		return number{}, &Error{Kind: ErrDivisionByZero}
	}
	return floatNumber(a.float() / b.float()), nil
}

// mod is floored: the sign of the result follows the divisor.
func mod(a, b number) (number, error) {
	if b.isZero() {
		return number{}, &Error{Kind: ErrDivisionByZero}
	}
	if a.isInt && b.isInt {
		r := a.i % b.i
		if r != 0 && (r < 0) != (b.i < 0) {
			r += b.i
		}
		return intNumber(r), nil
	}
	x, y := a.float(), b.float()
	r := math.Mod(x, y)
	if r != 0 && (r < 0) != (y < 0) {
		r += y
	}
	return floatNumber(r), nil
}

func pow(a, b number) (number, error) {
	if a.isZero() && b.float() < 0 {
		return number{}, &Error{Kind: ErrDivisionByZero}
	}
	if a.isInt && b.isInt && b.i >= 0 {
		if c, ok := intPow(a.i, b.i); ok {
			return intNumber(c), nil
		}
	}
	x, y := a.float(), b.float()
	if x < 0 && y != math.Trunc(y) {
		return number{}, &Error{Kind: ErrCalculation, Detail: "complex result"}
	}
	r := math.Pow(x, y)
	if math.IsInf(r, 0) {
		return number{}, &Error{Kind: ErrCalculation, Detail: "numerical result out of range"}
	}
	return floatNumber(r), nil
}

func mulInt(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	c := a * b
	if c/b != a {
		return 0, false
	}
	return c, true
}

func intPow(base, exp int64) (int64, bool) {
	result := int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			r, ok := mulInt(result, base)
			if !ok {
				return 0, false
			}
			result = r
		}
		exp >>= 1
		if exp > 0 {
			b, ok := mulInt(base, base)
			if !ok {
				return 0, false
			}
			base = b
		}
	}
	return result, true
}

// oversizedInteger reports whether input holds an integer literal that does not
// fit in int64. Digit runs that belong to a float or an identifier are skipped.
func oversizedInteger(input string) bool {
	for i := 0; i < len(input); {
		if !isDigit(input[i]) {
			i++
			continue
		}
		start := i
		for i < len(input) && isDigit(input[i]) {
			i++
		}
		if start > 0 && (input[start-1] == '.' || input[start-1] == '_' || isLetter(input[start-1])) {
			continue
		}
		if i < len(input) && (input[i] == '.' || input[i] == 'e' || input[i] == 'E' || input[i] == '_' || isLetter(input[i])) {
			continue
		}
		if _, err := strconv.ParseInt(input[start:i], 10, 64); errors.Is(err, strconv.ErrRange) {
			return true
		}
	}
	return false
}

func isDigit(b byte) bool  { return b >= '0' && b <= '9' }
func isLetter(b byte) bool { return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') }
