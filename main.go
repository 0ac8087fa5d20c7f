package main

import "github.com/mselser95/execution-gateway/cmd"

func main() {
	cmd.Execute()
}
