//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the testbed with tessera.toml.
func (Run) Engine() error {
	fmt.Println("Run engine...")
	if _, err := executeCmd("go", withArgs("run", ".", "-config", "tessera.toml"), withStream()); err != nil {
		return err
	}
	return nil
}

// Renders a fixed number of frames and exits.
func (Run) Frames() error {
	mg.Deps(Test.Vet)
	if _, err := executeCmd("go", withArgs("run", ".", "-config", "tessera.toml", "-frames", "600"), withStream()); err != nil {
		return err
	}
	return nil
}
