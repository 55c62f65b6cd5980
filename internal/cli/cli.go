// Package cli parses the ciallo binary's command line. Grounded on
// sotto's own internal/cli/cli.go (same flag-then-positional-command
// parse loop, same Parsed/HelpText shape), with the command set replaced
// end to end: sotto's single-shot dictation-toggle commands
// (toggle/stop) have no equivalent in a daemon that runs continuously,
// so they are dropped in favor of a persistent "run". "cancel" and
// "status" survive as commands that talk to an already-running daemon
// over its UI transport rather than owning their own state machine.
package cli

import (
	"errors"
	"fmt"
	"strings"
)

// Command names one of the ciallo binary's subcommands.
type Command string

const (
	// CommandRun starts the daemon: wake detection, the job scheduler,
	// and the local UI server all run until the process exits.
	CommandRun Command = "run"
	// CommandStatus queries a running daemon's current state over its
	// UI transport and prints it, then exits.
	CommandStatus Command = "status"
	// CommandCancel asks a running daemon to cancel whatever is
	// currently in flight, equivalent to the UI's cancel_current command.
	CommandCancel Command = "cancel"
	// CommandDevices lists available audio input devices.
	CommandDevices Command = "devices"
	// CommandDoctor runs configuration and environment checks.
	CommandDoctor Command = "doctor"
	// CommandVersion prints version information.
	CommandVersion Command = "version"
	// CommandHelp prints usage.
	CommandHelp Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandRun:     {},
	CommandStatus:  {},
	CommandCancel:  {},
	CommandDevices: {},
	CommandDoctor:  {},
	CommandVersion: {},
	CommandHelp:    {},
}

// Parsed is the result of parsing the process's argument list.
type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool
}

// Parse reads args into a Parsed command, defaulting to CommandHelp when
// no command is given.
func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			if i != len(args)-1 {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}
		}
	}

	return parsed, nil
}

// HelpText renders usage text for binaryName.
func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command>

Commands:
  run       Start the daemon: wake detection, translation pipelines, UI server
  status    Print the running daemon's current state
  cancel    Cancel whatever the running daemon is currently doing
  devices   List available audio input devices
  doctor    Run configuration and environment checks
  version   Print version information
  help      Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/ciallo/config.jsonc)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
