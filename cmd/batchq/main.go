package main

import (
	"os"

	"github.com/vulntor/batchq/cmd/batchq/commands"
)

func main() {
	os.Exit(commands.Execute())
}
