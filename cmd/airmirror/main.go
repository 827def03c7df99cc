package main

import (
	"github.com/bryanchriswhite/airmirror/cmd/airmirror/commands"
)

func main() {
	commands.Execute()
}
