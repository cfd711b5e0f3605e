// Command zif is a terminal frontend for the Z-machine core: it implements
// the engine's Screen/Keyboard/SaveFiler host interfaces against a real
// terminal using bubbletea, and offers a local-disk story picker when no
// story file is named on the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/colinmarc/zif/zmachine"
)

var storyFlag = flag.String("story", "", "path to a Z-code story file (.z3/.z5/.z7/.z8)")

// buildRunModel wires a freshly loaded story into a hostAdapter and a
// runModel, returning the model and the tea.Cmd that starts the
// interpreter running in the background.
func buildRunModel(data []byte, path string) (tea.Model, tea.Cmd) {
	shared := newSharedScreen()
	adapter := newHostAdapter(shared, path)

	z := zmachine.NewZMachine(data, adapter, adapter, adapter)

	ctx, cancel := context.WithCancel(context.Background())
	model := newRunModel(z, ctx, cancel, shared)

	return model, runInterpreter(ctx, z)
}

func main() {
	flag.Parse()

	var root tea.Model
	var startCmd tea.Cmd

	if *storyFlag != "" {
		data, err := os.ReadFile(*storyFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "zif: %v\n", err)
			os.Exit(1)
		}
		model, cmd := buildRunModel(data, *storyFlag)
		root, startCmd = model, cmd
	} else {
		dir, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "zif: %v\n", err)
			os.Exit(1)
		}
		root = newPickerModel(dir)
	}

	program = tea.NewProgram(rootModel{current: root, startCmd: startCmd})

	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "zif: %v\n", err)
		os.Exit(1)
	}
}
