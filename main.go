// The main package for the lottocrawler executable.
package main

import (
	"github.com/JakeFAU/lotto-store-crawler/cmd"
)

func main() {
	cmd.Execute()
}
