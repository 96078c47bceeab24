package main

import "github.com/iTrooz/bandcache/cmd/bandcache/cmd"

func main() {
	cmd.Execute()
}
