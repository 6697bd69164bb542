package main

import "github.com/nilsson-labs/apfs-recover/cmd"

func main() {
	cmd.Execute()
}
