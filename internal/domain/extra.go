package domain

import (
	"encoding/json"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Extra holds JSON members that this version does not model. They are kept
// opaque and written back unchanged so other tools sharing the document
// (the board UI, older CLIs) do not lose data.
type Extra map[string]json.RawMessage

var knownKeysCache sync.Map // reflect.Type -> map[string]bool

// knownKeys returns the JSON member names declared by t, including the
// members promoted from embedded structs.
func knownKeys(t reflect.Type) map[string]bool {
	if cached, ok := knownKeysCache.Load(t); ok {
		return cached.(map[string]bool)
	}
	keys := make(map[string]bool)
	collectKeys(t, keys)
	knownKeysCache.Store(t, keys)
	return keys
}

func collectKeys(t reflect.Type, keys map[string]bool) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if f.Anonymous && name == "" {
			collectKeys(f.Type, keys)
			continue
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		keys[name] = true
	}
}

// extractExtra returns the members of data not declared by the type of v.
func extractExtra(data []byte, v any) Extra {
	known := knownKeys(reflect.TypeOf(v))
	var extra Extra
	gjson.ParseBytes(data).ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if known[k] {
			return true
		}
		if extra == nil {
			extra = make(Extra)
		}
		extra[k] = json.RawMessage(value.Raw)
		return true
	})
	return extra
}

// mergeExtra appends the extra members to an encoded object. Members already
// present in data win.
func mergeExtra(data []byte, extra Extra) ([]byte, error) {
	if len(extra) == 0 {
		return data, nil
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	present := make(map[string]bool)
	gjson.ParseBytes(data).ForEach(func(key, _ gjson.Result) bool {
		present[key.String()] = true
		return true
	})

	var err error
	for _, k := range keys {
		if present[k] {
			continue
		}
		data, err = sjson.SetRawBytes(data, escapeKey(k), extra[k])
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

// escapeKey turns an object key into a single-component sjson path.
func escapeKey(k string) string {
	var b strings.Builder
	for i := 0; i < len(k); i++ {
		switch k[i] {
		case '.', '*', '?', '|', '#', '@', '!', '\\', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteByte(k[i])
	}
	return b.String()
}
