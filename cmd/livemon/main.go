package main

import (
	"flag"
	"fmt"
	"io"
	"os"
)

type cli struct {
	args []string
	out  io.Writer
}

type command interface {
	Name() string
	Help() string
	Run() error
	Register(*flag.FlagSet)
}

func (c *cli) run() int {
	cmdName, args := parseArgs(c.args)
	if cmdName == "" {
		c.printUsage()
		return errorExitCode
	}

	for _, cmd := range commands {
		if cmd.Name() != cmdName {
			continue
		}
		flags := flag.NewFlagSet(cmdName, flag.ContinueOnError)
		flags.SetOutput(c.out)
		cmd.Register(flags)
		if err := flags.Parse(args); err != nil {
			return errorExitCode
		}
		if err := cmd.Run(); err != nil {
			fmt.Fprintf(c.out, "Command failed: %v\n", err)
			return errorExitCode
		}
		return successExitCode
	}
	c.printUsage()
	return errorExitCode
}

var (
	successExitCode = 0
	errorExitCode   = 1
	commands        = []command{&serveCommand{}, &produceCommand{}}
)

func main() {
	c := cli{
		args: os.Args,
		out:  os.Stderr,
	}
	os.Exit(c.run())
}

func parseArgs(args []string) (string, []string) {
	if len(args) < 2 {
		return "", nil
	}
	return args[1], args[2:]
}

func (c *cli) printUsage() {
	fmt.Fprintln(c.out, "Livemon is a live telemetry monitor")
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "Usage: livemon <command> [flags]")
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintf(c.out, "\t%s\t%s\n", cmd.Name(), cmd.Help())
	}
}
