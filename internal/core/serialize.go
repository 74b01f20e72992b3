package core

import (
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Serializer converts call arguments and observed outcomes into the string
// form persisted inside a fixture record. Implementations must be
// deterministic: structurally equal inputs produce identical output.
type Serializer interface {
	Serialize(v any) string
}

// SafeSerializer is the default Serializer. It renders values as JSON with
// sorted map keys, and replaces circular references with a marker instead of
// recursing forever. Values implementing error render as their message string
// so a replayed rejection can reconstruct an equivalent error.
type SafeSerializer struct{}

// Serialize renders v as deterministic JSON. It never panics on cyclic
// structures.
func (SafeSerializer) Serialize(v any) string {
	var b strings.Builder

	writeValue(&b, reflect.ValueOf(v), &walkContext{})

	return b.String()
}

// walkContext carries the traversal state for one Serialize call: the
// identity of every container on the current ancestor chain, and the key path
// at which traversal currently sits. It is threaded explicitly through the
// recursion so the serializer stays reentrant.
type walkContext struct {
	ancestors []ancestor
	path      []string
}

// ancestor records a container on the current descent chain along with the
// dotted path at which it was entered.
type ancestor struct {
	id   uintptr
	path string
}

func (c *walkContext) pushAncestor(id uintptr) {
	c.ancestors = append(c.ancestors, ancestor{id: id, path: c.dottedPath()})
}

func (c *walkContext) popAncestor() {
	c.ancestors = c.ancestors[:len(c.ancestors)-1]
}

// ancestorPath reports whether id is on the current descent chain, and if so,
// the dotted path at which it was first entered.
func (c *walkContext) ancestorPath(id uintptr) (string, bool) {
	for _, a := range c.ancestors {
		if a.id == id {
			return a.path, true
		}
	}

	return "", false
}

func (c *walkContext) pushKey(key string) {
	c.path = append(c.path, key)
}

func (c *walkContext) popKey() {
	c.path = c.path[:len(c.path)-1]
}

// dottedPath renders the current key path as ".a.b.0". The root path renders
// as the empty string.
func (c *walkContext) dottedPath() string {
	if len(c.path) == 0 {
		return ""
	}

	return "." + strings.Join(c.path, ".")
}

// circularMarker encodes the dotted path back to the revisited ancestor. A
// reference back to the root value renders as a bare marker.
func circularMarker(path string) string {
	if path == "" {
		return "[Circular]"
	}

	return "[Circular (" + path + ")]"
}

//nolint:cyclop // the kind switch is inherently wide
func writeValue(b *strings.Builder, v reflect.Value, ctx *walkContext) {
	if !v.IsValid() {
		b.WriteString("null")
		return
	}

	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			b.WriteString("null")
			return
		}

		writeValue(b, v.Elem(), ctx)

		return
	}

	if isNillableKind(v.Kind()) && v.IsNil() {
		b.WriteString("null")
		return
	}

	// Errors render as their message so rejection reasons survive the round
	// trip with their message intact.
	if v.CanInterface() {
		if err, ok := v.Interface().(error); ok && err != nil {
			writeString(b, err.Error())
			return
		}
	}

	switch v.Kind() {
	case reflect.Bool:
		b.WriteString(strconv.FormatBool(v.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		b.WriteString(strconv.FormatInt(v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		b.WriteString(strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		writeFloat(b, v)
	case reflect.String:
		writeString(b, v.String())
	case reflect.Pointer:
		writePointer(b, v, ctx)
	case reflect.Map:
		writeMap(b, v, ctx)
	case reflect.Slice:
		writeSequence(b, v, ctx, v.Pointer())
	case reflect.Array:
		writeSequence(b, v, ctx, 0)
	case reflect.Struct:
		writeStruct(b, v, ctx)
	case reflect.Func, reflect.Chan, reflect.UnsafePointer,
		reflect.Complex64, reflect.Complex128, reflect.Invalid, reflect.Interface:
		// Not representable in a fixture. JSON-stringify semantics: null.
		b.WriteString("null")
	default:
		b.WriteString("null")
	}
}

func writeFloat(b *strings.Builder, v reflect.Value) {
	f := v.Float()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		b.WriteString("null")
		return
	}

	bits := 64
	if v.Kind() == reflect.Float32 {
		bits = 32
	}

	b.WriteString(strconv.FormatFloat(f, 'g', -1, bits))
}

func writeString(b *strings.Builder, s string) {
	data, err := jsonCodec.Marshal(s)
	if err != nil {
		b.WriteString("null")
		return
	}

	b.Write(data)
}

func writePointer(b *strings.Builder, v reflect.Value, ctx *walkContext) {
	id := v.Pointer()
	if path, found := ctx.ancestorPath(id); found {
		writeString(b, circularMarker(path))
		return
	}

	ctx.pushAncestor(id)
	defer ctx.popAncestor()

	writeValue(b, v.Elem(), ctx)
}

func writeMap(b *strings.Builder, v reflect.Value, ctx *walkContext) {
	id := v.Pointer()
	if path, found := ctx.ancestorPath(id); found {
		writeString(b, circularMarker(path))
		return
	}

	ctx.pushAncestor(id)
	defer ctx.popAncestor()

	keys := v.MapKeys()
	names := make([]string, len(keys))
	byName := make(map[string]reflect.Value, len(keys))

	for i, k := range keys {
		name := keyString(k)
		names[i] = name
		byName[name] = k
	}

	sort.Strings(names)

	b.WriteByte('{')

	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}

		writeString(b, name)
		b.WriteByte(':')

		ctx.pushKey(name)
		writeValue(b, v.MapIndex(byName[name]), ctx)
		ctx.popKey()
	}

	b.WriteByte('}')
}

func writeSequence(b *strings.Builder, v reflect.Value, ctx *walkContext, id uintptr) {
	if id != 0 {
		if path, found := ctx.ancestorPath(id); found {
			writeString(b, circularMarker(path))
			return
		}

		ctx.pushAncestor(id)
		defer ctx.popAncestor()
	}

	b.WriteByte('[')

	for i := range v.Len() {
		if i > 0 {
			b.WriteByte(',')
		}

		ctx.pushKey(strconv.Itoa(i))
		writeValue(b, v.Index(i), ctx)
		ctx.popKey()
	}

	b.WriteByte(']')
}

func writeStruct(b *strings.Builder, v reflect.Value, ctx *walkContext) {
	b.WriteByte('{')

	t := v.Type()
	wrote := false

	for i := range t.NumField() {
		field := t.Field(i)
		if field.PkgPath != "" { // unexported
			continue
		}

		name := fieldName(field)
		if name == "" {
			continue
		}

		if wrote {
			b.WriteByte(',')
		}

		wrote = true

		writeString(b, name)
		b.WriteByte(':')

		ctx.pushKey(name)
		writeValue(b, v.Field(i), ctx)
		ctx.popKey()
	}

	b.WriteByte('}')
}

// fieldName resolves a struct field's serialized name, honoring json tags the
// same way the fixture codec does. Returns "" for fields tagged out.
func fieldName(field reflect.StructField) string {
	tag, ok := field.Tag.Lookup("json")
	if !ok {
		return field.Name
	}

	name := tag
	if comma := strings.IndexByte(tag, ','); comma >= 0 {
		name = tag[:comma]
	}

	switch name {
	case "-":
		return ""
	case "":
		return field.Name
	default:
		return name
	}
}

// keyString renders a map key for sorting and output. Non-string keys use
// their default formatting.
func keyString(k reflect.Value) string {
	switch k.Kind() {
	case reflect.String:
		return k.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(k.Uint(), 10)
	case reflect.Bool:
		return strconv.FormatBool(k.Bool())
	case reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128,
		reflect.Invalid, reflect.Array, reflect.Chan, reflect.Func, reflect.Interface,
		reflect.Map, reflect.Pointer, reflect.Slice, reflect.Struct, reflect.UnsafePointer:
		return keyStringSlow(k)
	default:
		return keyStringSlow(k)
	}
}

func keyStringSlow(k reflect.Value) string {
	if !k.CanInterface() {
		return k.String()
	}

	data, err := jsonCodec.Marshal(k.Interface())
	if err != nil {
		return k.String()
	}

	return strings.Trim(string(data), `"`)
}

// isNillableKind returns true if the kind passed can hold nil.
// According to https://pkg.go.dev/reflect#Value.IsNil, this is the case for
// chan, func, interface, map, pointer, or slice kinds.
func isNillableKind(kind reflect.Kind) bool {
	switch kind {
	case reflect.Chan, reflect.Func, reflect.Interface,
		reflect.Map, reflect.Pointer, reflect.Slice:
		return true
	case reflect.Invalid, reflect.Bool, reflect.Int,
		reflect.Int8, reflect.Int16, reflect.Int32,
		reflect.Int64, reflect.Uint, reflect.Uint8,
		reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Uintptr, reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128, reflect.Array,
		reflect.String, reflect.Struct, reflect.UnsafePointer:
		return false
	default:
		return false
	}
}
