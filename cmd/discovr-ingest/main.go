package main

import "github.com/pfrederiksen/discovr-ingest/internal/cli"

var version = "dev"

func main() {
	cli.Version = version
	cli.Execute()
}
