package value

// Kind names a Value variant. The string form is the wire "type" tag.
type Kind string

const (
	KindScene                 Kind = "Scene"
	KindGeometry              Kind = "Geometry"
	KindMaterial              Kind = "Material"
	KindStage                 Kind = "Stage"
	KindUSDSceneData          Kind = "USDSceneData"
	KindUSDScenegraphMetadata Kind = "USDScenegraphMetadata"
	KindLight                 Kind = "Light"
	KindImage                 Kind = "Image"
	KindFloat                 Kind = "Float"
	KindInteger               Kind = "Integer"
	KindVector3               Kind = "Vector3"
	KindColor                 Kind = "Color"
	KindString                Kind = "String"
	KindBoolean               Kind = "Boolean"
	KindAny                   Kind = "Any"
	KindUSDScene              Kind = "USDScene"
	KindNone                  Kind = "None"
)

// Kinds lists every variant in canonical order.
var Kinds = []Kind{
	KindScene, KindGeometry, KindMaterial, KindStage, KindUSDSceneData,
	KindUSDScenegraphMetadata, KindLight, KindImage, KindFloat, KindInteger,
	KindVector3, KindColor, KindString, KindBoolean, KindAny, KindUSDScene, KindNone,
}

// Value is a payload flowing through node ports.
//
// The set of implementations is closed; only types in this package satisfy it.
type Value interface {
	Kind() Kind
	sealed()
}

// Scene is a complete renderable scene.
type Scene struct {
	Geometry   []Geometry  `json:"geometry"`
	Materials  []Material  `json:"materials"`
	Lights     []Light     `json:"lights"`
	Transforms []Transform `json:"transforms"`
}

// Transform places a scene object.
type Transform struct {
	Target string        `json:"target"`
	Matrix [4][4]float32 `json:"matrix"`
}

// Geometry is a triangle mesh. An empty MaterialID means no material is bound.
type Geometry struct {
	ID         string       `json:"id"`
	Vertices   [][3]float32 `json:"vertices"`
	Indices    []uint32     `json:"indices"`
	Normals    [][3]float32 `json:"normals"`
	UVs        [][2]float32 `json:"uvs"`
	MaterialID string       `json:"material_id,omitempty"`
}

// Material is a PBR material description.
type Material struct {
	ID         string     `json:"id"`
	BaseColor  [4]float32 `json:"base_color"`
	Metallic   float32    `json:"metallic"`
	Roughness  float32    `json:"roughness"`
	NormalMap  string     `json:"normal_map,omitempty"`
	DiffuseMap string     `json:"diffuse_map,omitempty"`
}

// Stage is a loaded USD stage reference.
type Stage struct {
	Identifier string   `json:"identifier"`
	FilePath   string   `json:"file_path,omitempty"`
	Prims      []string `json:"prims"`
}

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	Min [3]float32 `json:"min"`
	Max [3]float32 `json:"max"`
}

// USDSceneData is geometry extracted from a USD stage.
type USDSceneData struct {
	UpAxis    string     `json:"up_axis"`
	Meshes    []Geometry `json:"meshes"`
	Lights    []Light    `json:"lights"`
	Materials []Material `json:"materials"`
	Bounds    *Bounds    `json:"bounds,omitempty"`
}

// PrimNode is one node of a scenegraph hierarchy.
type PrimNode struct {
	Path     string     `json:"path"`
	Type     string     `json:"type"`
	Children []PrimNode `json:"children,omitempty"`
}

// PrimCounts summarizes a scenegraph.
type PrimCounts struct {
	Prims     int `json:"prims"`
	Meshes    int `json:"meshes"`
	Lights    int `json:"lights"`
	Materials int `json:"materials"`
}

// USDScenegraphMetadata describes the structure of a USD stage.
type USDScenegraphMetadata struct {
	Hierarchy PrimNode   `json:"hierarchy"`
	Counts    PrimCounts `json:"counts"`
	Bounds    *Bounds    `json:"bounds,omitempty"`
	UpAxis    string     `json:"up_axis"`
}

// LightType enumerates light shapes.
type LightType string

const (
	LightDirectional LightType = "Directional"
	LightPoint       LightType = "Point"
	LightSpot        LightType = "Spot"
	LightArea        LightType = "Area"
)

// Light is a scene light.
type Light struct {
	ID        string     `json:"id"`
	Type      LightType  `json:"type"`
	Position  [3]float32 `json:"position"`
	Color     [3]float32 `json:"color"`
	Intensity float32    `json:"intensity"`
}

// Image is a raster image reference.
type Image struct {
	ID       string `json:"id"`
	FilePath string `json:"file_path,omitempty"`
	Width    uint32 `json:"width"`
	Height   uint32 `json:"height"`
	Format   string `json:"format"`
}

type (
	Float    float32
	Integer  int32
	Vector3  [3]float32
	Color    [4]float32
	String   string
	Boolean  bool
	Any      string // opaque handle
	USDScene string // serialized scene reference
	None     struct{}
)

func (Scene) Kind() Kind                 { return KindScene }
func (Geometry) Kind() Kind              { return KindGeometry }
func (Material) Kind() Kind              { return KindMaterial }
func (Stage) Kind() Kind                 { return KindStage }
func (USDSceneData) Kind() Kind          { return KindUSDSceneData }
func (USDScenegraphMetadata) Kind() Kind { return KindUSDScenegraphMetadata }
func (Light) Kind() Kind                 { return KindLight }
func (Image) Kind() Kind                 { return KindImage }
func (Float) Kind() Kind                 { return KindFloat }
func (Integer) Kind() Kind               { return KindInteger }
func (Vector3) Kind() Kind               { return KindVector3 }
func (Color) Kind() Kind                 { return KindColor }
func (String) Kind() Kind                { return KindString }
func (Boolean) Kind() Kind               { return KindBoolean }
func (Any) Kind() Kind                   { return KindAny }
func (USDScene) Kind() Kind              { return KindUSDScene }
func (None) Kind() Kind                  { return KindNone }

func (Scene) sealed()                 {}
func (Geometry) sealed()              {}
func (Material) sealed()              {}
func (Stage) sealed()                 {}
func (USDSceneData) sealed()          {}
func (USDScenegraphMetadata) sealed() {}
func (Light) sealed()                 {}
func (Image) sealed()                 {}
func (Float) sealed()                 {}
func (Integer) sealed()               {}
func (Vector3) sealed()               {}
func (Color) sealed()                 {}
func (String) sealed()                {}
func (Boolean) sealed()               {}
func (Any) sealed()                   {}
func (USDScene) sealed()              {}
func (None) sealed()                  {}
