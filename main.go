package main

import "github.com/atikulmunna/sitekeeper/internal/cmd"

func main() {
	cmd.Execute()
}
