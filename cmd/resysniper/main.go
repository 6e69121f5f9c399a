package main

import "github.com/example/resy-sniper/cmd"

func main() {
	cmd.Execute()
}
