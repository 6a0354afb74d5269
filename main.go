package main

import "github.com/mapweave/mapweave/cmd"

func main() {
	cmd.Execute()
}
