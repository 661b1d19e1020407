package main

import "github.com/discode-ai/discode/cmd"

func main() {
	cmd.Execute()
}
