package main

import "github.com/vietddude/crewguard/internal/cli"

func main() {
	cli.Execute()
}
