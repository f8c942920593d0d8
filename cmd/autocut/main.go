// Package main provides the autocut command line entry point.
package main

import "github.com/maauso/autocut/internal/cli"

func main() {
	cli.Main()
}
