package main

import "github.com/mattcodi/fleet-updater/cmd/fleet-packager/cmd"

func main() {
	cmd.Execute()
}
