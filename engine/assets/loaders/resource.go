package loaders

// Resource is one loaded asset. Data holds the decoded form: []uint32 for
// SPIR-V, *image.RGBA for textures, *BitmapFont for fonts and
// *MaterialConfig for materials.
type Resource struct {
	Name     string
	FullPath string
	DataSize uint64
	Data     interface{}
}
