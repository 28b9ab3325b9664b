//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Builds the testbed binary into bin/.
func (Build) Binary() error {
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/tessera", "."), withStream()); err != nil {
		return err
	}
	return nil
}

type Test mg.Namespace

// Runs every package test with the race detector.
func (Test) All() error {
	_, err := executeCmd("go", withArgs("test", "-race", "./..."), withStream())
	return err
}

// Runs the renderer packages' tests with the race detector.
func (Test) Renderer() error {
	_, err := executeCmd("go", withArgs("test", "-race", "./..."), withDir("engine/renderer"), withStream())
	return err
}

// Runs go vet over the module.
func (Test) Vet() error {
	_, err := executeCmd("go", withArgs("vet", "./..."), withStream())
	return err
}
