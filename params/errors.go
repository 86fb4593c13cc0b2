package params

import (
	"fmt"
	"strconv"
)

// ArgumentCountMismatch occurs when a goal supplies a different
// number of arguments than the behavior declares parameters.
type ArgumentCountMismatch struct {
	Want int
	Got  int
}

func (e *ArgumentCountMismatch) Error() string {
	return "unmatched length of received args (" + strconv.Itoa(e.Got) +
		") and parameters (" + strconv.Itoa(e.Want) + ")"
}

// UnboundParameter occurs when an expression mentions a name that
// isn't bound.
type UnboundParameter struct {
	Name string
}

func (e *UnboundParameter) Error() string {
	return `unbound parameter "` + e.Name + `"`
}

// DisallowedExpression occurs when an expression is anything other
// than arithmetic over numbers and parameters.
type DisallowedExpression struct {
	Expr   string
	Reason string
}

func (e *DisallowedExpression) Error() string {
	return "disallowed expression " + strconv.Quote(e.Expr) + ": " + e.Reason
}

func typeName(x interface{}) string {
	return fmt.Sprintf("%T", x)
}
