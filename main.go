package main

import "github.com/voidstore/storesync/cmd"

func main() {
	cmd.Execute()
}
