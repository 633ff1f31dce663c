package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"svm/vm"
)

var (
	debugMode    bool
	disassemble  bool
	verboseLogs  bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "svm [source-file]",
		Short: "assemble and run a stack-machine program",
		Args:  cobra.ExactArgs(1),
		RunE:  runSource,
	}
	cmd.Flags().BoolVar(&debugMode, "debug", false, "single-step the program, printing state between instructions")
	cmd.Flags().BoolVar(&disassemble, "disassemble", false, "print the assembled bytecode instead of running it")
	cmd.Flags().BoolVar(&verboseLogs, "verbose", false, "emit debug-level construction/teardown logs")
	return cmd
}

func runSource(cmd *cobra.Command, args []string) error {
	path := args[0]
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	reader, sm, asmErr := vm.AssembleSource(src)
	if asmErr != nil {
		printAssembleError(src, asmErr)
		return asmErr
	}

	if disassemble {
		vm.Disassemble(cmd.OutOrStdout(), reader)
		return nil
	}

	logger := logrus.New()
	if verboseLogs {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}

	machine := vm.New(reader, sm, os.Stdin, os.Stdout, logger)
	defer machine.Teardown()

	var state vm.RunState
	if debugMode {
		state = vm.RunDebug(machine, bufio.NewReader(os.Stdin), os.Stdout)
	} else {
		state = machine.Run()
	}

	if state == vm.Faulted {
		printRuntimeFault(src, machine)
		return machine.FaultError()
	}
	return nil
}

func printAssembleError(src []byte, err error) {
	var pos vm.Position
	if ae, ok := err.(*vm.AssembleError); ok {
		pos = ae.Pos
	}
	fmt.Fprintf(os.Stderr, "ERROR Ln %d, Col %d: %s\n", pos.Line+1, pos.Col+1, err.Error())
	fmt.Fprintf(os.Stderr, "\t%s\n", sourceLine(src, pos.Line))
}

func printRuntimeFault(src []byte, machine *vm.VM) {
	span, ok := machine.FaultSpan()
	var line, col int
	var text string
	if ok {
		line, col = span.Start.Line, span.Start.Col
		text = spanText(src, span)
	}
	fmt.Fprintf(os.Stderr, "Runtime Error in Ln %d, Col %d: %s\n", line+1, col+1, machine.FaultError().Error())
	fmt.Fprintf(os.Stderr, "\t%s\n", text)
}

func sourceLine(src []byte, line int) string {
	n := 0
	start := 0
	for i, b := range src {
		if n == line {
			start = i
			break
		}
		if b == '\n' {
			n++
		}
	}
	end := start
	for end < len(src) && src[end] != '\n' {
		end++
	}
	return string(src[start:end])
}

func spanText(src []byte, span vm.Span) string {
	if span.Start.Offset < 0 || span.End.Offset > len(src) || span.Start.Offset > span.End.Offset {
		return sourceLine(src, span.Start.Line)
	}
	return string(src[span.Start.Offset:span.End.Offset])
}
