package main

import "github.com/forPelevin/shortify/internal/cli"

func main() {
	cli.Main()
}
