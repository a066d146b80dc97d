package main

import "danny/nn/cmd"

func main() {
	cmd.Execute()
}
