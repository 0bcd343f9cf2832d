package main

import (
	"ChromaFM/cmd"
)

func main() {
	cmd.Execute()
}
