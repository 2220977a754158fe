package assets

import "github.com/spaghettifunk/forwardplus/engine/assets/loaders"

// Loader turns a resolved file path into a resource.
type Loader interface {
	Load(path string) (*loaders.Resource, error)
}
