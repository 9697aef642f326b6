package value

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

type envelope struct {
	Type Kind `json:"type"`
	Data any  `json:"data,omitempty"`
}

// Marshal encodes v into its wire envelope. Only the variants declared in this
// package encode; pointers to them, typed nils included, are rejected with
// ErrEncode.
func Marshal(v Value) ([]byte, error) {
	switch v.(type) {
	case nil:
		return nil, ErrNilValue
	case Scene, Geometry, Material, Stage, USDSceneData, USDScenegraphMetadata,
		Light, Image, Float, Integer, Vector3, Color, String, Boolean, Any,
		USDScene, None:
	default:
		return nil, fmt.Errorf("%w: unsupported payload type %T", ErrEncode, v)
	}
	env := envelope{Type: v.Kind()}
	if _, none := v.(None); !none {
		env.Data = v
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEncode, v.Kind(), err)
	}
	return b, nil
}

// Unmarshal decodes a wire envelope produced by Marshal.
//
// The type tag is read without decoding the payload so that unknown kinds are
// rejected before any allocation for the data.
func Unmarshal(b []byte) (Value, error) {
	if !gjson.ValidBytes(b) {
		return nil, ErrMalformed
	}
	tag := gjson.GetBytes(b, "type")
	if tag.Type != gjson.String {
		return nil, fmt.Errorf("%w: missing type tag", ErrMalformed)
	}
	kind := Kind(tag.Str)
	data := gjson.GetBytes(b, "data")

	if kind == KindNone {
		return None{}, nil
	}
	if !data.Exists() {
		return nil, fmt.Errorf("%w: %s has no data", ErrMalformed, kind)
	}
	raw := []byte(data.Raw)

	switch kind {
	case KindScene:
		return decode[Scene](kind, raw)
	case KindGeometry:
		return decode[Geometry](kind, raw)
	case KindMaterial:
		return decode[Material](kind, raw)
	case KindStage:
		return decode[Stage](kind, raw)
	case KindUSDSceneData:
		return decode[USDSceneData](kind, raw)
	case KindUSDScenegraphMetadata:
		return decode[USDScenegraphMetadata](kind, raw)
	case KindLight:
		return decode[Light](kind, raw)
	case KindImage:
		return decode[Image](kind, raw)
	case KindFloat:
		return decode[Float](kind, raw)
	case KindInteger:
		return decode[Integer](kind, raw)
	case KindVector3:
		return decode[Vector3](kind, raw)
	case KindColor:
		return decode[Color](kind, raw)
	case KindString:
		return decode[String](kind, raw)
	case KindBoolean:
		return decode[Boolean](kind, raw)
	case KindAny:
		return decode[Any](kind, raw)
	case KindUSDScene:
		return decode[USDScene](kind, raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, tag.Str)
	}
}

func decode[T Value](kind Kind, raw []byte) (Value, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, kind, err)
	}
	return v, nil
}

// KindOf reports the type tag of an encoded payload without decoding it.
func KindOf(b []byte) (Kind, bool) {
	tag := gjson.GetBytes(b, "type")
	if tag.Type != gjson.String {
		return "", false
	}
	return Kind(tag.Str), true
}

// Clone returns an independent copy of v by round-tripping it through the
// wire form.
func Clone(v Value) (Value, error) {
	b, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	return Unmarshal(b)
}
