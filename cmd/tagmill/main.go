package main

import "github.com/tagmill/tagmill/cmd/tagmill/cmd"

func main() {
	cmd.Execute()
}
