package core

import (
	"errors"
	"fmt"
	"reflect"
)

// Payload revival: fixture payloads are double-encoded (a JSON string holding
// serialized JSON), and replay has to coerce the decoded values back into the
// declared parameter and return types of the wrapped signature.

// parsePayload decodes one double-encoded payload string into its argument
// list. Malformed content propagates from the codec unchanged.
func parsePayload(payload string) []any {
	var vals []any
	if err := jsonCodec.Unmarshal([]byte(payload), &vals); err != nil {
		panic(err)
	}

	return vals
}

// reviveArgs coerces decoded values into a function type's parameter types.
// Missing values become zero values.
func reviveArgs(vals []any, fnType reflect.Type) ([]reflect.Value, error) {
	revived := make([]reflect.Value, fnType.NumIn())

	for i := range revived {
		var raw any
		if i < len(vals) {
			raw = vals[i]
		}

		value, err := reviveValue(raw, fnType.In(i))
		if err != nil {
			return nil, err
		}

		revived[i] = value
	}

	return revived, nil
}

// reviveReturns coerces decoded values into a function type's return types.
func reviveReturns(vals []any, fnType reflect.Type) ([]reflect.Value, error) {
	revived := make([]reflect.Value, fnType.NumOut())

	for i := range revived {
		var raw any
		if i < len(vals) {
			raw = vals[i]
		}

		value, err := reviveValue(raw, fnType.Out(i))
		if err != nil {
			return nil, err
		}

		revived[i] = value
	}

	return revived, nil
}

//nolint:gochecknoglobals // reflect type sentinels
var (
	errType = reflect.TypeOf((*error)(nil)).Elem()
	anyType = reflect.TypeOf((*any)(nil)).Elem()
)

// reviveValue coerces one decoded JSON value into the target type. Errors
// were serialized as their message string, so an error-typed target gets an
// equivalent reconstructed error.
func reviveValue(raw any, target reflect.Type) (reflect.Value, error) {
	if raw == nil {
		return reflect.Zero(target), nil
	}

	if target == errType {
		if message, ok := raw.(string); ok {
			return reflect.ValueOf(errors.New(message)), nil //nolint:err113 // reconstructing a recorded error
		}

		return reflect.Zero(target), nil
	}

	if target == anyType {
		slot := reflect.New(target).Elem()
		slot.Set(reflect.ValueOf(raw))

		return slot, nil
	}

	rawValue := reflect.ValueOf(raw)

	if rawValue.Type().AssignableTo(target) {
		slot := reflect.New(target).Elem()
		slot.Set(rawValue)

		return slot, nil
	}

	// JSON numbers decode as float64; narrow them to the declared type.
	if isNumericKind(rawValue.Kind()) && isNumericKind(target.Kind()) {
		return rawValue.Convert(target), nil
	}

	// Everything structured goes back through the codec into the target type.
	data, err := jsonCodec.Marshal(raw)
	if err != nil {
		return reflect.Value{}, err
	}

	slot := reflect.New(target)
	if err := jsonCodec.Unmarshal(data, slot.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("cannot revive a %s from fixture payload %q: %w", target, string(data), err)
	}

	return slot.Elem(), nil
}

// rejectionReason reconstructs the rejection from recorded rejection args.
// The first recorded argument carries the reason's message.
func rejectionReason(vals []any) error {
	if len(vals) > 0 {
		if message, ok := vals[0].(string); ok {
			return errors.New(message) //nolint:err113 // reconstructing a recorded rejection
		}
	}

	return ErrUnsettledDeferred
}

func isNumericKind(kind reflect.Kind) bool {
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Uintptr, reflect.Float32, reflect.Float64:
		return true
	case reflect.Invalid, reflect.Bool, reflect.Complex64, reflect.Complex128,
		reflect.Array, reflect.Chan, reflect.Func, reflect.Interface, reflect.Map,
		reflect.Pointer, reflect.Slice, reflect.String, reflect.Struct, reflect.UnsafePointer:
		return false
	default:
		return false
	}
}
