package cli

import (
	"github.com/peer-calls/meetings/client/command"
)

func NewRootCommand(props Props) *command.Command {
	return command.New(command.Params{
		Name: "meetings",
		Desc: "Joins meetings and exchanges media over WebRTC.",
		ArgsPreProcessor: command.ArgsProcessorFunc(func(c *command.Command, args []string) []string {
			for _, arg := range args {
				if len(arg) > 0 && arg[0] != '-' {
					break
				}

				if arg == "-h" || arg == "--help" {
					return args
				}
			}

			first := ""
			if len(args) > 0 {
				first = args[0]
			}

			if len(first) > 0 && first[0] == '-' {
				return append([]string{"join"}, args...)
			}

			return args
		}),
		SubCommands: []*command.Command{
			newJoinCmd(props),
			newDevicesCmd(props),
			newVersionCmd(props),
		},
	})
}
