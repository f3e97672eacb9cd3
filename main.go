package main

import "github.com/threadline/apiserver/cmd"

func main() {
	cmd.Execute()
}
