package main

import "github.com/mickamy/plandiff/cmd"

var version = "dev"

func main() {
	cmd.Execute(version)
}
