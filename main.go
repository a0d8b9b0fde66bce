package main

import "github.com/alexferrari88/kmn-dl/cmd"

func main() {
	cmd.Execute()
}
