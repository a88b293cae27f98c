package main

import "github.com/mattcodi/fleet-updater/cmd/fleet-updater/cmd"

func main() {
	cmd.Execute()
}
