package main

import "github.com/vietddude/storeguard/internal/cli"

func main() {
	cli.Execute()
}
