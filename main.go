package main

import "audiolib/cmd"

func main() {
	cmd.Execute()
}
