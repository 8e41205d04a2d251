package main

import "github.com/vietddude/socialhub/internal/cli"

func main() {
	cli.Execute()
}
