package main

import "github.com/OpenTraceLab/OpenTraceGCode/cmd/otg/cmd"

func main() {
	cmd.Execute()
}
