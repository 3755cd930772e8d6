package main

import (
	"os"

	"kwrelay/cmd/kwrelay/cmds"
)

func main() {
	os.Exit(cmds.Execute())
}
