package main

import "github.com/lumen-lms/apiserver/cmd"

func main() {
	cmd.Execute()
}
