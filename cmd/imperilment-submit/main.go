package main

import (
	"imperilment-submitter/cmd/imperilment-submit/commands"
	"imperilment-submitter/internal/components/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
