package main

import "github.com/ogulcanaydogan/LLM-Provider-Gateway/internal/cli"

func main() {
	cli.Execute()
}
