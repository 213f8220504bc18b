package main

import "debias/internal/cli"

func main() {
	cli.Execute()
}
