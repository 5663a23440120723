package main

import "github.com/drblury/signalflow/cmd/signalflow/cmd"

func main() {
	cmd.Execute()
}
