package main

import "decayfm/cmd"

func main() {
	cmd.Execute()
}
