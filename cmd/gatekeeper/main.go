package main

import "github.com/finsync/gatekeeper/cmd/gatekeeper/cmd"

func main() {
	cmd.Execute()
}
