// internal/websocket/router_test.go
package websocket

import (
	"errors"
	"testing"
)

type fakeApp struct{}

func (a *fakeApp) Ping() string { return "pong" }

func (a *fakeApp) Add(x, y int) int { return x + y }

func (a *fakeApp) Describe(req struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}) string {
	return req.Name
}

func (a *fakeApp) Fail() error { return errors.New("boom") }

func (a *fakeApp) Lookup(id string) (string, error) {
	if id == "" {
		return "", errors.New("missing id")
	}
	return "found:" + id, nil
}

func TestRouterCall(t *testing.T) {
	r := NewRouter(&fakeApp{})

	t.Run("no params", func(t *testing.T) {
		result, err := r.Call("Ping", nil)
		if err != nil {
			t.Fatalf("Call failed: %v", err)
		}
		if result != "pong" {
			t.Errorf("result = %v", result)
		}
	})

	t.Run("numeric coercion", func(t *testing.T) {
		// JSON decoding yields float64 for numbers
		result, err := r.Call("Add", []interface{}{float64(2), float64(3)})
		if err != nil {
			t.Fatalf("Call failed: %v", err)
		}
		if result != 5 {
			t.Errorf("result = %v", result)
		}
	})

	t.Run("struct param", func(t *testing.T) {
		result, err := r.Call("Describe", []interface{}{
			map[string]interface{}{"name": "todo", "count": float64(2)},
		})
		if err != nil {
			t.Fatalf("Call failed: %v", err)
		}
		if result != "todo" {
			t.Errorf("result = %v", result)
		}
	})

	t.Run("error only return", func(t *testing.T) {
		if _, err := r.Call("Fail", nil); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("value and error return", func(t *testing.T) {
		result, err := r.Call("Lookup", []interface{}{"42"})
		if err != nil {
			t.Fatalf("Call failed: %v", err)
		}
		if result != "found:42" {
			t.Errorf("result = %v", result)
		}

		if _, err := r.Call("Lookup", []interface{}{""}); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("unknown method", func(t *testing.T) {
		if _, err := r.Call("Nope", nil); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("wrong arity", func(t *testing.T) {
		if _, err := r.Call("Add", []interface{}{float64(1)}); err == nil {
			t.Fatal("expected error")
		}
	})
}
