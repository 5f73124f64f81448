package main

import "github.com/localclaw/claw/cmd"

func main() {
	cmd.Execute()
}
