package testutil

import (
	"math"
	"strings"
	"testing"
)

func TestJS(t *testing.T) {
	tests := []struct {
		description string
		x           interface{}
		want        string
	}{
		{"nil", nil, "null"},
		{"list", []float64{0.5, 1}, "[0.5,1]"},
		{"tagged struct", struct {
			Dofs []string `json:"dofs"`
		}{[]string{"eye"}}, `{"dofs":["eye"]}`},
	}
	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			if got := JS(tc.x); got != tc.want {
				t.Fatalf("got %s", got)
			}
		})
	}
}

func TestJSNotFinite(t *testing.T) {
	got := JS([]float64{math.NaN()})
	if !strings.Contains(got, "NaN") {
		t.Fatalf("got %s", got)
	}
}

func TestParse(t *testing.T) {
	m, is := Parse(t, `{"behavior":"look","args":[0.5]}`).(map[string]interface{})
	if !is {
		t.Fatal(JS(m))
	}
	if m["behavior"] != "look" {
		t.Fatal(JS(m))
	}
	if xs, is := m["args"].([]interface{}); !is || xs[0] != 0.5 {
		t.Fatal(JS(m))
	}
}

func TestSameJSON(t *testing.T) {
	SameJSON(t, map[string]interface{}{
		"status": "PLAYING",
		"goal":   "g1",
	}, `{"goal": "g1", "status": "PLAYING"}`)
}
