//go:build mage

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
	"github.com/magefile/mage/target"
)

type toolRun struct {
	env    map[string]string
	stream bool
}

type runOption func(*toolRun)

// streamed echoes the tool's output as it runs.
func streamed() runOption {
	return func(r *toolRun) {
		r.stream = true
	}
}

func withEnv(key, value string) runOption {
	return func(r *toolRun) {
		if r.env == nil {
			r.env = make(map[string]string)
		}
		r.env[key] = value
	}
}

// runTool runs tool with args. Unless the output is streamed it is only
// printed when the tool fails.
func runTool(tool string, args []string, options ...runOption) error {
	r := &toolRun{}
	for _, o := range options {
		o(r)
	}
	fmt.Printf("Running: %s %s\n", tool, strings.Join(args, " "))

	var out bytes.Buffer
	stdout, stderr := io.Writer(&out), io.Writer(&out)
	show := mg.Verbose() || r.stream
	if show {
		stdout = io.MultiWriter(&out, os.Stdout)
		stderr = io.MultiWriter(&out, os.Stderr)
	}
	ran, err := sh.Exec(r.env, stdout, stderr, tool, args...)
	if err == nil {
		return nil
	}
	if !ran {
		return fmt.Errorf("%s could not be started, is it on PATH? %w", tool, err)
	}
	if !show {
		fmt.Println("... failed output:")
		fmt.Println(out.String())
	}
	return fmt.Errorf("%s failed: %w", tool, err)
}

// compileShader runs glslc on src when out is missing or older than src.
func compileShader(src, out string) error {
	stale, err := target.Path(out, src)
	if err != nil {
		return err
	}
	if !stale {
		fmt.Printf("Up to date: %s\n", out)
		return nil
	}
	return runTool("glslc", []string{src, "-o", out}, streamed())
}
