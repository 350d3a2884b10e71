package main

import "github.com/kowsik11/abhivan/cmd/cli"

func main() {
	cli.Execute()
}
