package main

import "github.com/Yates-Labs/storyloom/cmd"

func main() {
	cmd.Execute()
}
