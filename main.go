package main

import "bottle/cmd"

func main() {
	cmd.Execute()
}
