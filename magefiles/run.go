//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Builds the shaders and runs the testbed. FORWARDPLUS_CONFIG overrides the
// config file.
func (Run) Engine() error {
	if err := buildShaders(); err != nil {
		return err
	}
	cfg := os.Getenv("FORWARDPLUS_CONFIG")
	if cfg == "" {
		cfg = "config.toml"
	}
	fmt.Println("Run engine...")
	return runTool("go", []string{"run", ".", "-config", cfg}, withEnv("CGO_ENABLED", "1"), streamed())
}

// Prints Vulkan diagnostics: ext, gpu or queue.
func (Run) Vkdiag(cmd string) error {
	return runTool("go", []string{"run", ".", "vkdiag", cmd}, withEnv("CGO_ENABLED", "1"), streamed())
}
