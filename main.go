/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/forwardplus/engine"
	"github.com/spaghettifunk/forwardplus/engine/core"
	"github.com/spaghettifunk/forwardplus/engine/platform"
	"github.com/spaghettifunk/forwardplus/engine/renderer/vulkan"
	"github.com/spaghettifunk/forwardplus/testbed"
)

func main() {
	configPath := flag.String("config", "", "TOML or YAML config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config file] [vkdiag ext|gpu|queue]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if args := flag.Args(); len(args) > 0 && args[0] == "vkdiag" {
		if err := runVkdiag(args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := run(*configPath); err != nil {
		core.LogError("%s", err)
		os.Exit(1)
	}
}

func runVkdiag(args []string) error {
	procAddr, release, err := platform.VulkanLoader()
	if err != nil {
		return err
	}
	defer release()
	return vulkan.Vkdiag(os.Stdout, procAddr, args)
}

func run(configPath string) error {
	tb := testbed.NewTestGame(configPath)

	e, err := engine.New(tb.Game)
	if err != nil {
		return err
	}
	defer func() {
		if err := e.Shutdown(); err != nil {
			core.LogError("shutdown: %s", err)
		}
	}()

	if err := e.Initialize(); err != nil {
		return err
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	// the loop owns the GPU, so a signal only asks it to stop
	go func() {
		<-sigCh
		e.Stop()
	}()

	return e.Run()
}
