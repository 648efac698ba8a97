package main

import "sol-fee-audit/internal/cli"

func main() {
	cli.Execute()
}
