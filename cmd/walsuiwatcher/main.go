package main

import (
	"ratio-band-alerts/internal/cli"
)

func main() {
	cli.Execute()
}
