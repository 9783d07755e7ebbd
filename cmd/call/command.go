package main

import (
	"fmt"
	"strings"
)

type commandName int

const (
	cmdNone commandName = iota
	cmdSwitch
	cmdStats
	cmdLeave
)

type command struct {
	name commandName
	arg  string
}

func parseCommand(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, nil
	}
	switch strings.ToLower(fields[0]) {
	case "switch", "flip":
		if len(fields) > 2 {
			return command{}, fmt.Errorf("usage: switch [file]")
		}
		c := command{name: cmdSwitch}
		if len(fields) == 2 {
			c.arg = fields[1]
		}
		return c, nil
	case "stats":
		return command{name: cmdStats}, nil
	case "leave", "quit", "exit":
		return command{name: cmdLeave}, nil
	}
	return command{}, fmt.Errorf("unknown command %q (switch, stats, leave)", fields[0])
}
