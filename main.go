package main

import (
	"fmt"
	"os"
	"strings"

	"sparkrt/internal/cli"
)

const (
	cmdName = "sparkrt"

	shortDesc = "Synchronization and timeout core of a small RTOS, hosted."
	longDesc  = `sparkrt runs a small real-time kernel on the host: priority-scheduled
threads, a tick-driven skip-list timer engine, semaphores, recursive
priority-inheriting mutexes, condition variables, reader/writer locks, event
flags, message queues and fixed-block memory pools.

The run command boots the kernel with a demo workload that exercises every
primitive and prints a per-object report.
`
)

func main() {
	cmd := cli.NewRootCmd(cmdName, shortDesc, longDesc)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, strings.TrimLeft(err.Error(), "\n"))
		os.Exit(1)
	}
}
