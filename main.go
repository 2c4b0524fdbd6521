package main

import (
	"github.com/homeward-mc/homeward/internal/cmd"
)

func main() {
	cmd.Execute()
}
