package main

import "github.com/mj1618/ax-mcp/cmd"

func main() {
	cmd.Execute()
}
