/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package params substitutes goal arguments into keyframe
// expressions.
//
// An expression is a string made of numbers, parameter names, the
// operators + - * /, and parentheses.  Nothing else is allowed.  The
// string is parsed with github.com/expr-lang/expr/parser, and the
// resulting tree is checked and folded here.  The expr compiler and
// VM are never used, so an expression can't call functions, reach
// into the environment, or do anything except arithmetic.
package params

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

// Bindings maps parameter names to values.
type Bindings map[string]float64

// Bind pairs parameter names with argument values.
func Bind(names []string, args []float64) (Bindings, error) {
	if len(names) != len(args) {
		return nil, &ArgumentCountMismatch{
			Want: len(names),
			Got:  len(args),
		}
	}
	bs := make(Bindings, len(names))
	for i, name := range names {
		bs[name] = args[i]
	}
	return bs, nil
}

// Usable reports whether name can appear in an expression as a
// parameter.  Keywords like "in" and "not" can't, nor can names that
// aren't identifiers.
func Usable(name string) bool {
	tree, err := parser.Parse(name)
	if err != nil {
		return false
	}
	id, is := tree.Node.(*ast.IdentifierNode)
	return is && id.Value == name
}

// Evaluate computes the value of x, which is either a number or an
// expression string.  NaN and infinite numbers are disallowed.
func Evaluate(x interface{}, bs Bindings) (float64, error) {
	var f float64
	switch vv := x.(type) {
	case float64:
		f = vv
	case float32:
		f = float64(vv)
	case int:
		f = float64(vv)
	case int64:
		f = float64(vv)
	case json.Number:
		var err error
		if f, err = vv.Float64(); err != nil {
			return 0, &DisallowedExpression{string(vv), err.Error()}
		}
	case string:
		return EvaluateString(vv, bs)
	case nil:
		return 0, &DisallowedExpression{"", "missing value"}
	default:
		return 0, &DisallowedExpression{"", "unsupported value " + strconv.Quote(typeName(x))}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &DisallowedExpression{strconv.FormatFloat(f, 'g', -1, 64), "non-finite"}
	}
	return f, nil
}

// EvaluateAll evaluates each element of xs.
//
// The first error stops the evaluation.
func EvaluateAll(xs []interface{}, bs Bindings) ([]float64, error) {
	acc := make([]float64, len(xs))
	for i, x := range xs {
		f, err := Evaluate(x, bs)
		if err != nil {
			return nil, err
		}
		acc[i] = f
	}
	return acc, nil
}

// EvaluateString parses and evaluates an expression string.
func EvaluateString(src string, bs Bindings) (float64, error) {
	tree, err := parser.Parse(src)
	if err != nil {
		return 0, &DisallowedExpression{src, err.Error()}
	}
	if err = check(src, tree.Node); err != nil {
		return 0, err
	}
	f, err := fold(src, tree.Node, bs)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &DisallowedExpression{src, "non-finite result"}
	}
	return f, nil
}

// check walks the whole tree and rejects anything that isn't plain
// arithmetic.
//
// A disallowed construct is reported even if the expression also
// mentions an unbound parameter.
func check(src string, n ast.Node) error {
	switch vv := n.(type) {
	case *ast.IntegerNode, *ast.FloatNode, *ast.IdentifierNode:
		return nil
	case *ast.UnaryNode:
		switch vv.Operator {
		case "-", "+":
			return check(src, vv.Node)
		}
		return &DisallowedExpression{src, "operator " + strconv.Quote(vv.Operator)}
	case *ast.BinaryNode:
		switch vv.Operator {
		case "+", "-", "*", "/":
		default:
			return &DisallowedExpression{src, "operator " + strconv.Quote(vv.Operator)}
		}
		if err := check(src, vv.Left); err != nil {
			return err
		}
		return check(src, vv.Right)
	default:
		return &DisallowedExpression{src, "construct " + typeName(n)}
	}
}

// fold evaluates a tree that passed check.
func fold(src string, n ast.Node, bs Bindings) (float64, error) {
	switch vv := n.(type) {
	case *ast.IntegerNode:
		return float64(vv.Value), nil
	case *ast.FloatNode:
		return vv.Value, nil
	case *ast.IdentifierNode:
		f, have := bs[vv.Value]
		if !have {
			return 0, &UnboundParameter{vv.Value}
		}
		return f, nil
	case *ast.UnaryNode:
		x, err := fold(src, vv.Node, bs)
		if err != nil {
			return 0, err
		}
		if vv.Operator == "-" {
			return -x, nil
		}
		return x, nil
	case *ast.BinaryNode:
		x, err := fold(src, vv.Left, bs)
		if err != nil {
			return 0, err
		}
		y, err := fold(src, vv.Right, bs)
		if err != nil {
			return 0, err
		}
		switch vv.Operator {
		case "+":
			return x + y, nil
		case "-":
			return x - y, nil
		case "*":
			return x * y, nil
		default:
			if y == 0 {
				return 0, &DisallowedExpression{src, "division by zero"}
			}
			return x / y, nil
		}
	default:
		return 0, &DisallowedExpression{src, "construct " + typeName(n)}
	}
}
