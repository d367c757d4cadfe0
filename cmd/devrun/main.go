package main

import (
	"os"

	"github.com/psantana5/devrun/cmd/devrun/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
