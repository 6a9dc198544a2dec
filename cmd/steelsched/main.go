// Package main is the entrypoint for the steelsched command-line tool.
package main

import "github.com/kiranshivaraju/steelsched/internal/cli"

func main() {
	cli.Execute()
}
