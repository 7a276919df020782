package main

import "github.com/hotswap-labs/hotswapd/cmd/swapctl/cmd"

func main() {
	cmd.Execute()
}
