package value

import (
	"encoding/json"
	"fmt"
	"math"
)

// number is a float32 whose JSON form survives non-finite values: NaN, +Inf
// and -Inf are written as the strings "NaN", "+Inf" and "-Inf".
type number float32

func (f number) MarshalJSON() ([]byte, error) {
	x := float64(f)
	switch {
	case math.IsNaN(x):
		return []byte(`"NaN"`), nil
	case math.IsInf(x, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(x, -1):
		return []byte(`"-Inf"`), nil
	}
	return json.Marshal(float32(f))
}

func (f *number) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || b[0] != '"' {
		var x float32
		if err := json.Unmarshal(b, &x); err != nil {
			return err
		}
		*f = number(x)
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "NaN":
		*f = number(math.NaN())
	case "+Inf", "Inf":
		*f = number(math.Inf(1))
	case "-Inf":
		*f = number(math.Inf(-1))
	default:
		return fmt.Errorf("invalid float %q", s)
	}
	return nil
}

// toNumbers and fromNumbers copy between equal-length float arrays.
func toNumbers(dst []number, src []float32) {
	for i := range dst {
		dst[i] = number(src[i])
	}
}

func fromNumbers(dst []float32, src []number) {
	for i := range dst {
		dst[i] = float32(src[i])
	}
}

func toNumbers3(src [][3]float32) [][3]number {
	if src == nil {
		return nil
	}
	out := make([][3]number, len(src))
	for i := range src {
		toNumbers(out[i][:], src[i][:])
	}
	return out
}

func fromNumbers3(src [][3]number) [][3]float32 {
	if src == nil {
		return nil
	}
	out := make([][3]float32, len(src))
	for i := range src {
		fromNumbers(out[i][:], src[i][:])
	}
	return out
}

func toNumbers2(src [][2]float32) [][2]number {
	if src == nil {
		return nil
	}
	out := make([][2]number, len(src))
	for i := range src {
		toNumbers(out[i][:], src[i][:])
	}
	return out
}

func fromNumbers2(src [][2]number) [][2]float32 {
	if src == nil {
		return nil
	}
	out := make([][2]float32, len(src))
	for i := range src {
		fromNumbers(out[i][:], src[i][:])
	}
	return out
}

func (f Float) MarshalJSON() ([]byte, error) {
	return number(f).MarshalJSON()
}

func (f *Float) UnmarshalJSON(b []byte) error {
	var n number
	if err := n.UnmarshalJSON(b); err != nil {
		return err
	}
	*f = Float(n)
	return nil
}

func (v Vector3) MarshalJSON() ([]byte, error) {
	var w [3]number
	toNumbers(w[:], v[:])
	return json.Marshal(w)
}

func (v *Vector3) UnmarshalJSON(b []byte) error {
	var w [3]number
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	fromNumbers(v[:], w[:])
	return nil
}

func (c Color) MarshalJSON() ([]byte, error) {
	var w [4]number
	toNumbers(w[:], c[:])
	return json.Marshal(w)
}

func (c *Color) UnmarshalJSON(b []byte) error {
	var w [4]number
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	fromNumbers(c[:], w[:])
	return nil
}

type transformWire struct {
	Target string       `json:"target"`
	Matrix [4][4]number `json:"matrix"`
}

func (t Transform) MarshalJSON() ([]byte, error) {
	w := transformWire{Target: t.Target}
	for i := range t.Matrix {
		toNumbers(w.Matrix[i][:], t.Matrix[i][:])
	}
	return json.Marshal(w)
}

func (t *Transform) UnmarshalJSON(b []byte) error {
	var w transformWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*t = Transform{Target: w.Target}
	for i := range w.Matrix {
		fromNumbers(t.Matrix[i][:], w.Matrix[i][:])
	}
	return nil
}

type geometryWire struct {
	ID         string      `json:"id"`
	Vertices   [][3]number `json:"vertices"`
	Indices    []uint32    `json:"indices"`
	Normals    [][3]number `json:"normals"`
	UVs        [][2]number `json:"uvs"`
	MaterialID string      `json:"material_id,omitempty"`
}

func (g Geometry) MarshalJSON() ([]byte, error) {
	return json.Marshal(geometryWire{
		ID:         g.ID,
		Vertices:   toNumbers3(g.Vertices),
		Indices:    g.Indices,
		Normals:    toNumbers3(g.Normals),
		UVs:        toNumbers2(g.UVs),
		MaterialID: g.MaterialID,
	})
}

func (g *Geometry) UnmarshalJSON(b []byte) error {
	var w geometryWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*g = Geometry{
		ID:         w.ID,
		Vertices:   fromNumbers3(w.Vertices),
		Indices:    w.Indices,
		Normals:    fromNumbers3(w.Normals),
		UVs:        fromNumbers2(w.UVs),
		MaterialID: w.MaterialID,
	}
	return nil
}

type materialWire struct {
	ID         string    `json:"id"`
	BaseColor  [4]number `json:"base_color"`
	Metallic   number    `json:"metallic"`
	Roughness  number    `json:"roughness"`
	NormalMap  string    `json:"normal_map,omitempty"`
	DiffuseMap string    `json:"diffuse_map,omitempty"`
}

func (m Material) MarshalJSON() ([]byte, error) {
	w := materialWire{
		ID:         m.ID,
		Metallic:   number(m.Metallic),
		Roughness:  number(m.Roughness),
		NormalMap:  m.NormalMap,
		DiffuseMap: m.DiffuseMap,
	}
	toNumbers(w.BaseColor[:], m.BaseColor[:])
	return json.Marshal(w)
}

func (m *Material) UnmarshalJSON(b []byte) error {
	var w materialWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*m = Material{
		ID:         w.ID,
		Metallic:   float32(w.Metallic),
		Roughness:  float32(w.Roughness),
		NormalMap:  w.NormalMap,
		DiffuseMap: w.DiffuseMap,
	}
	fromNumbers(m.BaseColor[:], w.BaseColor[:])
	return nil
}

type boundsWire struct {
	Min [3]number `json:"min"`
	Max [3]number `json:"max"`
}

func (bb Bounds) MarshalJSON() ([]byte, error) {
	var w boundsWire
	toNumbers(w.Min[:], bb.Min[:])
	toNumbers(w.Max[:], bb.Max[:])
	return json.Marshal(w)
}

func (bb *Bounds) UnmarshalJSON(b []byte) error {
	var w boundsWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	fromNumbers(bb.Min[:], w.Min[:])
	fromNumbers(bb.Max[:], w.Max[:])
	return nil
}

type lightWire struct {
	ID        string    `json:"id"`
	Type      LightType `json:"type"`
	Position  [3]number `json:"position"`
	Color     [3]number `json:"color"`
	Intensity number    `json:"intensity"`
}

func (l Light) MarshalJSON() ([]byte, error) {
	w := lightWire{ID: l.ID, Type: l.Type, Intensity: number(l.Intensity)}
	toNumbers(w.Position[:], l.Position[:])
	toNumbers(w.Color[:], l.Color[:])
	return json.Marshal(w)
}

func (l *Light) UnmarshalJSON(b []byte) error {
	var w lightWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*l = Light{ID: w.ID, Type: w.Type, Intensity: float32(w.Intensity)}
	fromNumbers(l.Position[:], w.Position[:])
	fromNumbers(l.Color[:], w.Color[:])
	return nil
}
