package main

import (
	"os"

	"matelock-backend/cmd"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "agent" {
		cmd.RunAgent(os.Args[2:])
		return
	}
	cmd.Run()
}
