package main

import "github.com/qrave1/TypeRace/cmd"

func main() {
	cmd.Execute()
}
