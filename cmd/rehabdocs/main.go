package main

import "github.com/hamshmas/personal-rehabilitation-docs/cmd/rehabdocs/cmd"

func main() {
	cmd.Execute()
}
