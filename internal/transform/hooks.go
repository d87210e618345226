package transform

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/ncruces/go-strftime"

	"github.com/roach88/mongo2elastic/internal/document"
)

// Hook is a site-specific document mutation. It may add, remove or modify
// fields. Errors abort the document's processing unchanged.
type Hook interface {
	Mutate(doc *document.Document) error
}

// HookFunc adapts a function to the Hook interface.
type HookFunc func(doc *document.Document) error

// Mutate calls f(doc).
func (f HookFunc) Mutate(doc *document.Document) error {
	return f(doc)
}

// HookFactory builds a Hook from its configured arguments.
type HookFactory func(args map[string]string) (Hook, error)

var hookRegistry = map[string]HookFactory{
	"reformat_date": newReformatDateHook,
	"status_text":   newStatusTextHook,
}

// NewHook builds the registered hook called name.
func NewHook(name string, args map[string]string) (Hook, error) {
	factory, ok := hookRegistry[name]
	if !ok {
		return nil, fmt.Errorf("unknown hook %q (available: %v)", name, HookNames())
	}
	h, err := factory(args)
	if err != nil {
		return nil, fmt.Errorf("hook %q: %w", name, err)
	}
	return h, nil
}

// HookNames lists the registered hook names in sorted order.
func HookNames() []string {
	names := make([]string, 0, len(hookRegistry))
	for name := range hookRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func requireArgs(args map[string]string, names ...string) error {
	var missing []string
	for _, n := range names {
		if args[n] == "" {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing arguments: %v", missing)
	}
	return nil
}

func argOr(args map[string]string, name, def string) string {
	if v, ok := args[name]; ok && v != "" {
		return v
	}
	return def
}

// reformat_date: replaces a date-time field with its strftime rendering,
// e.g. {field: "date", format: "%Y-%m"}. Non-time values are left alone.
func newReformatDateHook(args map[string]string) (Hook, error) {
	if err := requireArgs(args, "field", "format"); err != nil {
		return nil, err
	}
	field, format := args["field"], args["format"]

	return HookFunc(func(doc *document.Document) error {
		v, ok := doc.Get(field)
		if !ok {
			return nil
		}
		if ts, ok := v.(time.Time); ok {
			doc.Set(field, strftime.Format(format, ts))
		}
		return nil
	}), nil
}

// status_text: turns a numeric status into text. The value equal to ok_value
// (default "0") becomes ok_text ("OK"), anything else fail_text ("NOK").
// With when_field/when_value, only documents where that field equals
// when_value are touched.
func newStatusTextHook(args map[string]string) (Hook, error) {
	if err := requireArgs(args, "field"); err != nil {
		return nil, err
	}
	field := args["field"]
	whenField, whenValue := args["when_field"], args["when_value"]
	if (whenField == "") != (whenValue == "") {
		return nil, fmt.Errorf("when_field and when_value must be set together")
	}
	okValue := argOr(args, "ok_value", "0")
	okText := argOr(args, "ok_text", "OK")
	failText := argOr(args, "fail_text", "NOK")

	return HookFunc(func(doc *document.Document) error {
		if whenField != "" {
			v, ok := doc.Get(whenField)
			if !ok || scalarString(v) != whenValue {
				return nil
			}
		}
		v, ok := doc.Get(field)
		if !ok {
			return nil
		}
		if scalarString(v) == okValue {
			doc.Set(field, okText)
		} else {
			doc.Set(field, failText)
		}
		return nil
	}), nil
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(v)
	}
}

// Chain runs hooks in order, stopping at the first error.
func Chain(hooks ...Hook) Hook {
	hooks = slices.DeleteFunc(slices.Clone(hooks), func(h Hook) bool { return h == nil })
	return HookFunc(func(doc *document.Document) error {
		for _, h := range hooks {
			if err := h.Mutate(doc); err != nil {
				return err
			}
		}
		return nil
	})
}
