package main

import "github.com/adamgarcia4/goLearning/fleet/cmd"

func main() {
	cmd.Execute()
}
