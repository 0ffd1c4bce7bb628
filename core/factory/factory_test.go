package factory

import (
	"testing"
	"time"
)

type sample struct{ A int }

type sinkConf struct {
	URL     string        `json:"url"`
	Timeout time.Duration `json:"timeout"`
	Retries int           `json:"retries"`
}

type sampleConf struct {
	A int `json:"a"`
}

// Test registry registration and instantiation using Decode.
func TestRegistry_Create(t *testing.T) {
	reg := NewRegistry[*sample]()
	if err := reg.Register("s", func(conf map[string]any) (*sample, error) {
		var c sampleConf
		if err := Decode(conf, &c); err != nil {
			return nil, err
		}
		return &sample{A: c.A}, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	inst, err := reg.Create(ModuleConfig{Type: "s", Conf: map[string]any{"a": 3}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inst.A != 3 {
		t.Fatalf("expected 3 got %d", inst.A)
	}
}

// Test duplicate registration and unknown type errors.
func TestRegistry_Errors(t *testing.T) {
	reg := NewRegistry[int]()
	if err := reg.Register("x", func(map[string]any) (int, error) { return 1, nil }); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register("x", nil); err == nil {
		t.Fatal("expected duplicate error")
	}
	if _, err := reg.Create(ModuleConfig{Type: "y"}); err == nil {
		t.Fatal("expected unknown type error")
	}
}

// Test weak typing and duration strings in raw module settings.
func TestDecode_DurationAndWeakTypes(t *testing.T) {
	var c sinkConf
	err := Decode(map[string]any{"url": "http://influx:8086", "timeout": "2s", "retries": "3"}, &c)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.Timeout != 2*time.Second || c.Retries != 3 {
		t.Fatalf("unexpected config %+v", c)
	}
}

func TestRegistry_Names(t *testing.T) {
	reg := NewRegistry[int]()
	_ = reg.Register("sqlite", func(map[string]any) (int, error) { return 1, nil })
	_ = reg.Register("jsonl", func(map[string]any) (int, error) { return 2, nil })
	names := reg.Names()
	if len(names) != 2 || names[0] != "jsonl" || names[1] != "sqlite" {
		t.Fatalf("unexpected names %v", names)
	}
}
