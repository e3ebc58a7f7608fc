package main

import "github.com/example/tablestaff/cmd"

func main() {
	cmd.Execute()
}
