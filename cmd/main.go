package main

import (
	"github.com/monitor-client/cmd/agent"
)

func main() {
	agent.Execute()
}
