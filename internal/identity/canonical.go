// Package identity stamps batches with idempotency/trace/txn keys and
// computes the stable content hash used upstream to detect re-sent batches.
package identity

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// fnv1a32 folds s through 32-bit FNV-1a.
func fnv1a32(s string) uint32 {
	const (
		offset = 2166136261
		prime  = 16777619
	)
	h := uint32(offset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime
	}
	return h
}

// canonicalString serializes v deterministically: object keys sorted at
// every level, array order preserved, unserializable values (funcs,
// channels) dropped, cycles broken via a seen-set (repeat visit serializes
// as null). The output is JSON-shaped but exists only as hash input, so it
// never needs to round-trip.
func canonicalString(v any) string {
	var b strings.Builder
	seen := map[uintptr]bool{}
	writeCanonical(&b, reflect.ValueOf(v), seen)
	return b.String()
}

func writeCanonical(b *strings.Builder, v reflect.Value, seen map[uintptr]bool) {
	if !v.IsValid() {
		b.WriteString("null")
		return
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			b.WriteString("null")
			return
		}
		writeCanonical(b, v.Elem(), seen)

	case reflect.Pointer:
		if v.IsNil() {
			b.WriteString("null")
			return
		}
		ptr := v.Pointer()
		if seen[ptr] {
			b.WriteString("null")
			return
		}
		seen[ptr] = true
		writeCanonical(b, v.Elem(), seen)
		delete(seen, ptr)

	case reflect.Map:
		if v.IsNil() {
			b.WriteString("null")
			return
		}
		keys := make([]string, 0, v.Len())
		byKey := make(map[string]reflect.Value, v.Len())
		for _, k := range v.MapKeys() {
			ks := fmt.Sprintf("%v", k.Interface())
			keys = append(keys, ks)
			byKey[ks] = v.MapIndex(k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		first := true
		for _, k := range keys {
			val := byKey[k]
			if !serializable(val) {
				continue
			}
			if !first {
				b.WriteByte(',')
			}
			first = false
			b.WriteString(strconv.Quote(k))
			b.WriteByte(':')
			writeCanonical(b, val, seen)
		}
		b.WriteByte('}')

	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			b.WriteString("null")
			return
		}
		b.WriteByte('[')
		for i := 0; i < v.Len(); i++ {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, v.Index(i), seen)
		}
		b.WriteByte(']')

	case reflect.Struct:
		// Structs serialize like sorted-key objects over their JSON field
		// names so a typed params struct and its generic map form hash
		// identically.
		fields := structFields(v)
		b.WriteByte('{')
		first := true
		for _, f := range fields {
			if !first {
				b.WriteByte(',')
			}
			first = false
			b.WriteString(strconv.Quote(f.name))
			b.WriteByte(':')
			writeCanonical(b, f.value, seen)
		}
		b.WriteByte('}')

	case reflect.String:
		b.WriteString(strconv.Quote(v.String()))

	case reflect.Bool:
		b.WriteString(strconv.FormatBool(v.Bool()))

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		b.WriteString(strconv.FormatInt(v.Int(), 10))

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		b.WriteString(strconv.FormatUint(v.Uint(), 10))

	case reflect.Float32, reflect.Float64:
		b.WriteString(strconv.FormatFloat(v.Float(), 'g', -1, 64))

	default:
		// func, chan, unsafe pointer: dropped to null.
		b.WriteString("null")
	}
}

type canonicalField struct {
	name  string
	value reflect.Value
}

// structFields lists the exported fields of v under their JSON names,
// sorted, honoring omitempty the way encoding/json does for the value kinds
// the protocol uses.
func structFields(v reflect.Value) []canonicalField {
	t := v.Type()
	fields := make([]canonicalField, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" {
			continue
		}
		name := sf.Name
		omitEmpty := false
		if tag, ok := sf.Tag.Lookup("json"); ok {
			parts := strings.Split(tag, ",")
			if parts[0] == "-" {
				continue
			}
			if parts[0] != "" {
				name = parts[0]
			}
			for _, opt := range parts[1:] {
				if opt == "omitempty" {
					omitEmpty = true
				}
			}
		}
		fv := v.Field(i)
		if omitEmpty && fv.IsZero() {
			continue
		}
		if !serializable(fv) {
			continue
		}
		fields = append(fields, canonicalField{name: name, value: fv})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].name < fields[j].name })
	return fields
}

func serializable(v reflect.Value) bool {
	for v.Kind() == reflect.Interface {
		if v.IsNil() {
			return true
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return false
	}
	return true
}
