package main

import "github.com/ppiankov/intentgov/internal/cli"

func main() {
	cli.Execute()
}
