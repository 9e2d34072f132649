package main

import "github.com/knowcode/knowcode/internal/cli"

func main() {
	cli.Execute()
}
