package cli

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/mattn/go-isatty"
)

// MainLoop runs interactive prompt on terminal, otherwise executes stdin line by line.
// Returns when stop is closed or input ends.
func MainLoop(tag string, exec func(line string), complete func(d prompt.Document) []prompt.Suggest, stop <-chan struct{}) {
	if isatty.IsTerminal(os.Stdin.Fd()) {
		p := prompt.New(exec, complete,
			prompt.OptionTitle(tag),
			prompt.OptionPrefix(tag+"> "),
			prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
				select {
				case <-stop:
					return true
				default:
				}
				return breakline && (in == "quit" || in == "exit")
			}),
		)
		p.Run()
		return
	}
	ReadLines(os.Stdin, exec, stop)
}

// ReadLines executes each trimmed line of r.
func ReadLines(r io.Reader, exec func(line string), stop <-chan struct{}) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case <-stop:
			return
		default:
		}
		exec(strings.TrimSpace(scanner.Text()))
	}
}
