package main

import "github.com/nextlevelbuilder/windlink/cmd"

func main() {
	cmd.Execute()
}
