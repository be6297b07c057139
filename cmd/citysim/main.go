package main

import "github.com/hession/citysim/internal/cli"

func main() {
	cli.Execute()
}
