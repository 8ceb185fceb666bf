// Package calc evaluates a restricted arithmetic grammar: numeric literals,
// parentheses, unary +/- and the binary operators + - * / ** %.
//
// Expressions are parsed with expr-lang's parser and evaluated by walking the
// resulting tree. The expr VM is never used and no environment is supplied, so
// identifiers, calls and member access can never be resolved.
package calc

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

// ErrorPrefix marks a failed evaluation in a textual payload.
const ErrorPrefix = "ERROR:"

var (
	ErrInvalidExpression = errors.New("invalid expression")
	ErrUnsupported       = errors.New("unsupported construct")
	ErrDivisionByZero    = errors.New("division by zero")
	ErrCalculation       = errors.New("calculation failed")
)

// Error describes a failed evaluation. Kind is one of the package sentinels.
type Error struct {
	Kind   error
	Input  string
	Detail string
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrInvalidExpression:
		return "Invalid expression: " + e.Input
	case ErrUnsupported:
		return e.Detail
	case ErrDivisionByZero:
		return "Division by zero"
	default:
		return "Calculation failed: " + e.Detail
	}
}

func (e *Error) Unwrap() error { return e.Kind }

// Evaluate parses and evaluates expression, returning the decimal rendering of
// the result.
func Evaluate(expression string) (string, error) {
	input := strings.TrimSpace(expression)
	if input == "" {
		return "", &Error{Kind: ErrInvalidExpression, Input: expression}
	}
	tree, err := parser.Parse(input)
	if err != nil {
		if oversizedInteger(input) {
			return "", &Error{Kind: ErrCalculation, Input: expression, Detail: "integer literal out of range"}
		}
		return "", &Error{Kind: ErrInvalidExpression, Input: expression}
	}
	n, err := eval(tree.Node)
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			ce.Input = expression
			return "", ce
		}
		return "", &Error{Kind: ErrCalculation, Input: expression, Detail: err.Error()}
	}
	if !n.isInt && (math.IsInf(n.f, 0) || math.IsNaN(n.f)) {
		return "", &Error{Kind: ErrCalculation, Input: expression, Detail: "numerical result out of range"}
	}
	return n.String(), nil
}

// EvaluateString is Evaluate with failures rendered as an "ERROR: ..." payload.
func EvaluateString(expression string) string {
	out, err := Evaluate(expression)
	if err != nil {
		return ErrorPrefix + " " + err.Error()
	}
	return out
}

func eval(node ast.Node) (number, error) {
	switch n := node.(type) {
	case *ast.IntegerNode:
		return intNumber(int64(n.Value)), nil
	case *ast.FloatNode:
		return floatNumber(n.Value), nil
	case *ast.UnaryNode:
		operand, err := eval(n.Node)
		if err != nil {
			return number{}, err
		}
		switch n.Operator {
		case "+":
			return operand, nil
		case "-":
			return operand.neg(), nil
		}
		return number{}, unsupportedOperation(n.Operator)
	case *ast.BinaryNode:
		op, ok := binaryOps[n.Operator]
		if !ok {
			return number{}, unsupportedOperation(n.Operator)
		}
		left, err := eval(n.Left)
		if err != nil {
			return number{}, err
		}
		right, err := eval(n.Right)
		if err != nil {
			return number{}, err
		}
		return op(left, right)
	case nil:
		return number{}, &Error{Kind: ErrInvalidExpression}
	default:
		name := strings.TrimPrefix(fmt.Sprintf("%T", node), "*ast.")
		return number{}, &Error{Kind: ErrUnsupported, Detail: "Unsupported node type: " + name}
	}
}

func unsupportedOperation(op string) error {
	return &Error{Kind: ErrUnsupported, Detail: "Unsupported operation: " + op}
}
