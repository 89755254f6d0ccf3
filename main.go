package main

import "github.com/nextlevelbuilder/frontdesk/cmd"

func main() {
	cmd.Execute()
}
