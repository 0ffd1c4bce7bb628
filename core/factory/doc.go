// Package factory provides a small generic registry used to instantiate modules
// from configuration. Modules are defined by a type string and a map of raw
// settings. Factories decode the settings into typed structs and return the
// concrete implementation.
//
// Example usage:
//
//	reg := factory.NewRegistry[journal.Store]()
//	reg.Register("jsonl", func(conf map[string]any) (journal.Store, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return journal.NewJSONLStore(c.Path)
//	})
//	r, err := reg.Create(factory.ModuleConfig{Type: "jsonl", Conf: map[string]any{"path": "journal.jsonl"}})
package factory
