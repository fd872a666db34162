package main

import "github.com/dexlens/indexer/cmd"

func main() {
	cmd.Execute()
}
