package main

import "faultline/cmd/faultlinectl/cmd"

func main() {
	cmd.Execute()
}
