// Package inspector turns tagged structs into display rows.
package inspector

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"
)

// Widget selects how a field is drawn.
type Widget int

const (
	WidgetLabel Widget = iota
	WidgetBar
	WidgetBool
	WidgetSkip
)

// Field is one exported struct field with its rendering hints.
type Field struct {
	Name   string
	Label  string
	Value  any
	Widget Widget
	Format string  // Printf verb from the fmt option
	Max    float32 // Bar full scale from the max option, default 1
}

// ParseTag parses an inspect struct tag.
// Format: `inspect:"widget[,option:value...]"`, for example
// `inspect:"bar,max:1"` or `inspect:"label,fmt:%.1f"`.
func ParseTag(tag string) (Widget, map[string]string) {
	options := make(map[string]string)
	parts := strings.Split(tag, ",")

	var w Widget
	switch strings.TrimSpace(parts[0]) {
	case "bar":
		w = WidgetBar
	case "bool":
		w = WidgetBool
	case "skip":
		w = WidgetSkip
	default:
		w = WidgetLabel
	}

	for _, part := range parts[1:] {
		kv := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(kv) == 2 {
			options[kv[0]] = kv[1]
		}
	}
	return w, options
}

// Fields extracts the exported fields of a struct or struct pointer, in
// declaration order. Fields tagged skip are left out.
func Fields(v any) []Field {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	t := rv.Type()
	var out []Field
	for i := 0; i < rv.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		tag, tagged := sf.Tag.Lookup("inspect")
		w, options := ParseTag(tag)
		if w == WidgetSkip {
			continue
		}
		fv := rv.Field(i)
		if !tagged && fv.Kind() == reflect.Bool {
			w = WidgetBool
		}

		f := Field{
			Name:   sf.Name,
			Label:  Label(sf.Name),
			Value:  fv.Interface(),
			Widget: w,
			Format: options["fmt"],
			Max:    1,
		}
		if m, err := strconv.ParseFloat(options["max"], 32); err == nil && m > 0 {
			f.Max = float32(m)
		}
		out = append(out, f)
	}
	return out
}

// Label turns a Go identifier into a display label: "DensityMean" becomes
// "Density mean".
func Label(name string) string {
	var b strings.Builder
	rs := []rune(name)
	for i, r := range rs {
		if i > 0 && unicode.IsUpper(r) && !unicode.IsUpper(rs[i-1]) {
			b.WriteByte(' ')
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Text formats the value with the field's format, or a default per type.
func (f Field) Text() string {
	if f.Format != "" {
		return fmt.Sprintf(f.Format, f.Value)
	}
	switch v := f.Value.(type) {
	case float32, float64:
		return fmt.Sprintf("%.2f", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Fraction returns the value over Max clamped to [0, 1], for bars.
func (f Field) Fraction() float32 {
	x, ok := Float(f.Value)
	if !ok {
		return 0
	}
	x /= f.Max
	switch {
	case !(x > 0):
		return 0
	case x > 1:
		return 1
	}
	return x
}

// Float extracts a float32 from numeric values.
func Float(value any) (float32, bool) {
	switch v := value.(type) {
	case float32:
		return v, true
	case float64:
		return float32(v), true
	case int:
		return float32(v), true
	case int32:
		return float32(v), true
	case int64:
		return float32(v), true
	case uint32:
		return float32(v), true
	case uint64:
		return float32(v), true
	default:
		return 0, false
	}
}
