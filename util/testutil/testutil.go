/* Copyright 2018 Comcast Cable Communications Management, LLC
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

// Package testutil has JSON helpers for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"reflect"
	"testing"
)

// JS renders its argument as JSON.  When that's not possible (say,
// NaN in a frame), JS returns a Go-syntax rendering instead.
func JS(x interface{}) string {
	bs, err := json.Marshal(&x)
	if err != nil {
		return fmt.Sprintf("%#v", x)
	}
	return string(bs)
}

// Parse parses a JSON message into generic values the way a coupling
// would before decoding.
func Parse(t testing.TB, js string) interface{} {
	t.Helper()
	var x interface{}
	if err := json.Unmarshal([]byte(js), &x); err != nil {
		t.Fatalf("parsing %s: %s", js, err)
	}
	return x
}

// SameJSON checks that got renders as the same JSON value as want,
// ignoring property order and whitespace.
func SameJSON(t testing.TB, got interface{}, want string) {
	t.Helper()
	bs, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("can't render %#v: %s", got, err)
	}
	if !reflect.DeepEqual(Parse(t, string(bs)), Parse(t, want)) {
		t.Fatalf("got %s\nwant %s", bs, want)
	}
}
