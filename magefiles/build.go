//go:build mage

package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

const (
	shaderSrcDir = "shaders"
	shaderOutDir = "assets/shaders"
)

type Build mg.Namespace

// Compiles every GLSL stage under shaders/ into assets/shaders/<name>.spv,
// skipping stages whose output is newer than the source.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the shaders and then the forwardplus binary.
func (Build) Binary() error {
	mg.Deps(Build.Shaders)
	// the goki bindings are cgo
	return runTool("go", []string{"build", "-o", "bin/forwardplus", "."}, withEnv("CGO_ENABLED", "1"), streamed())
}

func buildShaders() error {
	if err := os.MkdirAll(shaderOutDir, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(shaderSrcDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !isShaderStage(e.Name()) {
			continue
		}
		src := filepath.Join(shaderSrcDir, e.Name())
		out := filepath.Join(shaderOutDir, e.Name()+".spv")
		if err := compileShader(src, out); err != nil {
			return err
		}
	}
	return nil
}

func isShaderStage(name string) bool {
	switch strings.TrimPrefix(filepath.Ext(name), ".") {
	case "vert", "frag", "comp":
		return true
	}
	return false
}
