package main

import (
	"github.com/leaseth/leaseth/pkg/cli"
)

func main() {
	cli.Execute()
}
