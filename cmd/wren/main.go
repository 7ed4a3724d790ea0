package main

import "github.com/wren-mail/wren/internal/cli"

func main() {
	cli.Execute()
}
