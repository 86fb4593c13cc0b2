package params

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/dop251/goja"
)

func near(x, y float64) bool {
	return math.Abs(x-y) < 1e-9
}

func TestEvaluateArithmetic(t *testing.T) {
	f, err := Evaluate("x*2+1", Bindings{"x": 0.3})
	if err != nil {
		t.Fatal(err)
	}
	if !near(f, 1.6) {
		t.Fatalf("got %v", f)
	}
}

func TestEvaluateLiterals(t *testing.T) {
	for _, x := range []interface{}{0.25, float32(0.25), 1, int64(1), json.Number("0.25")} {
		f, err := Evaluate(x, nil)
		if err != nil {
			t.Fatalf("%#v: %s", x, err)
		}
		if f != 0.25 && f != 1 {
			t.Fatalf("%#v: got %v", x, f)
		}
	}
}

func TestEvaluateUnbound(t *testing.T) {
	_, err := Evaluate("y", Bindings{})
	var ub *UnboundParameter
	if !errors.As(err, &ub) {
		t.Fatalf("got %#v", err)
	}
	if ub.Name != "y" {
		t.Fatalf("name %s", ub.Name)
	}
}

func TestEvaluateDisallowed(t *testing.T) {
	for _, src := range []string{
		"__import__('os')",
		"x.y",
		"x[0]",
		"x ** 2",
		"x ^ 2",
		"x % 2",
		"x == 1",
		"!x",
		"'tacos'",
		"true",
		"nil",
		"[1, 2]",
		"{a: 1}",
		"x > 0 ? 1 : 0",
		"len(x)",
		"let y = 1; y",
		"",
		"1 +",
		"(1",
		// Disallowed wins over unbound.
		"unbound + f()",
	} {
		t.Run(src, func(t *testing.T) {
			_, err := Evaluate(src, Bindings{"x": 1})
			var de *DisallowedExpression
			if !errors.As(err, &de) {
				t.Fatalf("got %#v", err)
			}
		})
	}
}

func TestEvaluateNonFinite(t *testing.T) {
	for _, src := range []string{"1/0", "x/(x-x)", "1/-0"} {
		_, err := Evaluate(src, Bindings{"x": 2})
		var de *DisallowedExpression
		if !errors.As(err, &de) {
			t.Fatalf("%s: got %#v", src, err)
		}
	}
}

func TestEvaluateNonFiniteLiterals(t *testing.T) {
	for _, x := range []interface{}{
		math.NaN(),
		math.Inf(1),
		float32(math.Inf(-1)),
		json.Number("1e999"),
	} {
		_, err := Evaluate(x, nil)
		var de *DisallowedExpression
		if !errors.As(err, &de) {
			t.Fatalf("%#v: got %#v", x, err)
		}
	}
	if _, err := Evaluate("x", Bindings{"x": math.NaN()}); err == nil {
		t.Fatal("expected an error for a NaN binding")
	}
}

func TestEvaluateOddValues(t *testing.T) {
	for _, x := range []interface{}{nil, true, []interface{}{1}, json.Number("tacos")} {
		if _, err := Evaluate(x, nil); err == nil {
			t.Fatalf("%#v: expected an error", x)
		}
	}
}

func TestEvaluateAll(t *testing.T) {
	bs := Bindings{"amt": 0.5}
	got, err := EvaluateAll([]interface{}{"amt", 0.1, "1-amt", "(amt+1)/3"}, bs)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0.5, 0.1, 0.5, 0.5}
	for i := range want {
		if !near(got[i], want[i]) {
			t.Fatalf("%d: got %v want %v", i, got[i], want[i])
		}
	}

	if _, err := EvaluateAll([]interface{}{0.1, "nope"}, bs); err == nil {
		t.Fatal("expected an error")
	}
}

func TestUsable(t *testing.T) {
	for _, name := range []string{"amt", "x2", "_speed", "eyeLid"} {
		if !Usable(name) {
			t.Fatalf("%s should be usable", name)
		}
	}
	for _, name := range []string{"in", "not", "and", "or", "let", "matches", "true", "nil", "", "2x", "a b", "a.b"} {
		if Usable(name) {
			t.Fatalf("%q shouldn't be usable", name)
		}
	}
}

func TestBind(t *testing.T) {
	bs, err := Bind([]string{"a", "b"}, []float64{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	if bs["a"] != 1 || bs["b"] != 2 {
		t.Fatalf("got %#v", bs)
	}

	_, err = Bind([]string{"a"}, nil)
	var acm *ArgumentCountMismatch
	if !errors.As(err, &acm) {
		t.Fatalf("got %#v", err)
	}
	if acm.Want != 1 || acm.Got != 0 {
		t.Fatalf("got %#v", acm)
	}

	if bs, err = Bind(nil, nil); err != nil || len(bs) != 0 {
		t.Fatalf("got %#v %v", bs, err)
	}
}

// TestEvaluateAgainstECMAScript checks that arithmetic here agrees
// with a real ECMAScript engine.
func TestEvaluateAgainstECMAScript(t *testing.T) {
	bs := Bindings{
		"amt":   0.3,
		"speed": 2,
		"n":     -1.5,
	}

	vm := goja.New()
	for name, f := range bs {
		if err := vm.Set(name, f); err != nil {
			t.Fatal(err)
		}
	}

	for _, src := range []string{
		"amt",
		"amt*2+1",
		"1-amt",
		"-amt",
		"+amt",
		"- -amt",
		"(amt+speed)*n",
		"amt+speed*n",
		"amt/speed/2",
		"amt-speed-n",
		"0.1/speed",
		"((((amt))))",
		"3*(2-(1+amt))/speed",
		"0.001*speed",
		"10",
	} {
		t.Run(src, func(t *testing.T) {
			got, err := Evaluate(src, bs)
			if err != nil {
				t.Fatal(err)
			}
			v, err := vm.RunString(src)
			if err != nil {
				t.Fatal(err)
			}
			if want := v.ToFloat(); !near(got, want) {
				t.Fatalf("got %v, ECMAScript says %v", got, want)
			}
		})
	}
}
