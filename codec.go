package tablesess

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/minus-twelve/tablesess/types"
)

// Reserved entity columns. They are never read back as session fields and
// session fields with these names are never written.
const (
	ColumnPartitionKey = "PartitionKey"
	ColumnRowKey       = "RowKey"
	ColumnTimestamp    = "Timestamp"
)

var jsonAPI = sonic.ConfigStd

// IsReservedColumn reports whether name is a backend column rather than a
// session field.
func IsReservedColumn(name string) bool {
	switch name {
	case ColumnPartitionKey, ColumnRowKey, ColumnTimestamp, ".metadata":
		return true
	}
	return strings.HasPrefix(name, "odata.") || strings.Contains(name, "@odata.")
}

// IsPrivateField reports whether a session field is transient.
func IsPrivateField(name string) bool {
	return strings.HasPrefix(name, "_")
}

// Encode flattens a session into the entity stored under rowKey. Strings are
// kept verbatim, numbers are stringified and structured values are stored
// as JSON text. Values of any other type are dropped and reported as
// warnings; Encode never fails.
func Encode(partitionKey, rowKey string, s types.Session) (types.Entity, []Warning) {
	e := types.Entity{
		PartitionKey: partitionKey,
		RowKey:       rowKey,
		Properties:   make(map[string]interface{}, len(s)),
	}

	var warnings []Warning
	for k, v := range s {
		if IsPrivateField(k) {
			continue
		}
		if IsReservedColumn(k) {
			warnings = append(warnings, Warning{
				Kind:   WarnEncodeSkipped,
				RowKey: rowKey,
				Field:  k,
				Err:    fmt.Errorf("field name collides with reserved column"),
			})
			continue
		}

		str, err := encodeValue(v)
		if err != nil {
			warnings = append(warnings, Warning{Kind: WarnEncodeSkipped, RowKey: rowKey, Field: k, Err: err})
			continue
		}
		e.Properties[k] = str
	}
	return e, warnings
}

var errNilValue = errors.New("nil value")

func encodeValue(v interface{}) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", errNilValue
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return formatNumber(rv.Float()), nil
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		s, err := jsonAPI.MarshalToString(v)
		if err != nil {
			return "", fmt.Errorf("marshal structured value: %w", err)
		}
		return s, nil
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "", errNilValue
		}
		return encodeValue(rv.Elem().Interface())
	}
	return "", fmt.Errorf("unsupported value of type %T", v)
}

// formatNumber renders a float the way a JavaScript runtime would print it:
// integral values carry no fraction and no exponent is used below 1e21.
func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case math.Abs(f) >= 1e21:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Decode rebuilds a session from a stored entity. Reserved columns and nil
// values are skipped. Strings starting with "{" are parsed as JSON objects;
// a field that fails to parse is dropped and reported as a warning. Any
// other value is kept as stored.
func Decode(e types.Entity) (types.Session, []Warning) {
	s := make(types.Session, len(e.Properties))

	var warnings []Warning
	for k, v := range e.Properties {
		if v == nil || IsReservedColumn(k) {
			continue
		}

		str, ok := v.(string)
		if !ok || !strings.HasPrefix(str, "{") {
			s[k] = v
			continue
		}

		var obj map[string]interface{}
		if err := jsonAPI.UnmarshalFromString(str, &obj); err != nil {
			warnings = append(warnings, Warning{
				Kind:   WarnDecodeDropped,
				RowKey: e.RowKey,
				Field:  k,
				Err:    fmt.Errorf("parse structured field: %w", err),
			})
			continue
		}
		s[k] = obj
	}
	return s, warnings
}

// DecodeCookie reads the reserved cookie field straight from an entity.
func DecodeCookie(e types.Entity) (types.Cookie, error) {
	raw, ok := e.Properties[types.CookieField]
	if !ok || raw == nil {
		return types.Cookie{}, fmt.Errorf("%s attribute missing", types.CookieField)
	}
	str, ok := raw.(string)
	if !ok {
		return types.Cookie{}, fmt.Errorf("%s attribute has type %T", types.CookieField, raw)
	}

	var c types.Cookie
	if err := jsonAPI.UnmarshalFromString(str, &c); err != nil {
		return types.Cookie{}, fmt.Errorf("parse %s attribute: %w", types.CookieField, err)
	}
	if c.Expires == nil {
		if !explicitNull(str, "expires") {
			return types.Cookie{}, fmt.Errorf("%s attribute has no expires", types.CookieField)
		}
		// A cookie without a max age stores "expires": null, read as the epoch.
		epoch := time.Unix(0, 0).UTC()
		c.Expires = &epoch
	}
	return c, nil
}

func explicitNull(object, key string) bool {
	var fields map[string]interface{}
	if err := jsonAPI.UnmarshalFromString(object, &fields); err != nil {
		return false
	}
	v, ok := fields[key]
	return ok && v == nil
}
