package main

import "github.com/easygo-dev/token/internal/cli"

func main() {
	cli.Execute()
}
