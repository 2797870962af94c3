package main

import "cryogon/panpipe/cli"

func main() {
	cli.Execute()
}
