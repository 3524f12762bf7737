package main

import "github.com/tanq16/resumer/cmd"

func main() {
	cmd.Execute()
}
