package assets

import (
	"image"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/forwardplus/engine/assets/loaders"
	"github.com/spaghettifunk/forwardplus/engine/core"
)

type ResourceType int

const (
	ResourceTypeNone ResourceType = iota
	ResourceTypeShader
	ResourceTypeTexture
	ResourceTypeBitmapFont
	ResourceTypeBinary
	ResourceTypeMaterial
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeShader:
		return "shader"
	case ResourceTypeTexture:
		return "texture"
	case ResourceTypeBitmapFont:
		return "bitmap font"
	case ResourceTypeBinary:
		return "binary"
	case ResourceTypeMaterial:
		return "material"
	default:
		return "none"
	}
}

// ResolvePath joins rel onto root and rejects absolute paths and any path
// that lexically leaves root. Symlinks are not followed.
func ResolvePath(root, rel string) (string, error) {
	if rel == "" {
		return "", errors.Newf("empty asset path")
	}
	if filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", errors.Wrapf(core.ErrPathEscapesRoot, "%q is absolute", rel)
	}
	cleanRoot := filepath.Clean(root)
	full := filepath.Join(cleanRoot, rel)
	back, err := filepath.Rel(cleanRoot, full)
	if err != nil {
		return "", errors.Wrapf(core.ErrPathEscapesRoot, "%q", rel)
	}
	if back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", errors.Wrapf(core.ErrPathEscapesRoot, "%q resolves outside %q", rel, root)
	}
	return full, nil
}

type AssetInfo struct {
	Path       string
	Type       ResourceType
	LastLoaded time.Time
}

// AssetManager loads files below a single root directory.
type AssetManager struct {
	root    string
	loaders map[ResourceType]Loader

	mutex  sync.RWMutex
	assets map[string]AssetInfo
}

func NewAssetManager(root string) *AssetManager {
	am := &AssetManager{
		root:    root,
		loaders: make(map[ResourceType]Loader),
		assets:  make(map[string]AssetInfo),
	}
	am.registerLoader(ResourceTypeShader, &loaders.ShaderLoader{})
	am.registerLoader(ResourceTypeTexture, &loaders.TextureLoader{})
	am.registerLoader(ResourceTypeBitmapFont, &loaders.BitmapFontLoader{})
	am.registerLoader(ResourceTypeBinary, &loaders.BinaryLoader{})
	am.registerLoader(ResourceTypeMaterial, &loaders.MaterialLoader{})
	return am
}

func (am *AssetManager) Root() string { return am.root }

func (am *AssetManager) registerLoader(assetType ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

// Path resolves rel under the asset root.
func (am *AssetManager) Path(rel string) (string, error) {
	return ResolvePath(am.root, rel)
}

// LoadAsset resolves rel and runs the loader registered for resourceType.
func (am *AssetManager) LoadAsset(rel string, resourceType ResourceType) (*loaders.Resource, error) {
	path, err := am.Path(rel)
	if err != nil {
		return nil, err
	}
	loader, ok := am.loaders[resourceType]
	if !ok {
		return nil, errors.Newf("no loader registered for asset type: %s", resourceType)
	}
	res, err := loader.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s %s", resourceType, rel)
	}
	res.Name = rel

	am.mutex.Lock()
	am.assets[path] = AssetInfo{Path: path, Type: resourceType, LastLoaded: time.Now()}
	am.mutex.Unlock()
	return res, nil
}

// Loaded lists the assets loaded so far.
func (am *AssetManager) Loaded() []AssetInfo {
	am.mutex.RLock()
	defer am.mutex.RUnlock()

	out := make([]AssetInfo, 0, len(am.assets))
	for _, a := range am.assets {
		out = append(out, a)
	}
	return out
}

func (am *AssetManager) LoadSPIRV(rel string) ([]uint32, error) {
	res, err := am.LoadAsset(rel, ResourceTypeShader)
	if err != nil {
		return nil, err
	}
	return res.Data.([]uint32), nil
}

// LoadTexture decodes any registered image format to 8-bit RGBA.
func (am *AssetManager) LoadTexture(rel string) (*image.RGBA, error) {
	res, err := am.LoadAsset(rel, ResourceTypeTexture)
	if err != nil {
		return nil, err
	}
	return res.Data.(*image.RGBA), nil
}

func (am *AssetManager) LoadFont(rel string) (*loaders.BitmapFont, error) {
	res, err := am.LoadAsset(rel, ResourceTypeBitmapFont)
	if err != nil {
		return nil, err
	}
	return res.Data.(*loaders.BitmapFont), nil
}

func (am *AssetManager) LoadMaterial(rel string) (*loaders.MaterialConfig, error) {
	res, err := am.LoadAsset(rel, ResourceTypeMaterial)
	if err != nil {
		return nil, err
	}
	return res.Data.(*loaders.MaterialConfig), nil
}

// ShaderSet loads SPIR-V modules from one directory under the asset root.
type ShaderSet struct {
	am  *AssetManager
	dir string
}

func (am *AssetManager) Shaders(dir string) ShaderSet {
	return ShaderSet{am: am, dir: dir}
}

// Dir is the shader directory on disk.
func (s ShaderSet) Dir() (string, error) {
	return s.am.Path(s.dir)
}

func (s ShaderSet) LoadSPIRV(name string) ([]uint32, error) {
	return s.am.LoadSPIRV(filepath.Join(s.dir, name))
}

func determineAssetType(path string) ResourceType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".spv":
		return ResourceTypeShader
	case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp", ".gif":
		return ResourceTypeTexture
	case ".fnt":
		return ResourceTypeBitmapFont
	case ".mat":
		return ResourceTypeMaterial
	default:
		return ResourceTypeNone
	}
}
