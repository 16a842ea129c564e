package main

import (
	"github.com/openadeia/teesync/cmd"
)

func main() {
	cmd.Execute()
}
