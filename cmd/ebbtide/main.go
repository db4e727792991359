package main

import "github.com/ebbtide-net/ebbtide/internal/cli"

func main() {
	cli.Execute()
}
