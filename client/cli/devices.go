package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/juju/errors"
	"github.com/peer-calls/meetings/client"
	"github.com/peer-calls/meetings/client/codecs"
	"github.com/peer-calls/meetings/client/command"
	"github.com/peer-calls/meetings/client/devices"
	"github.com/spf13/pflag"
)

type devicesHandler struct {
	args struct {
		config string
	}

	props Props
}

func (h *devicesHandler) RegisterFlags(c *command.Command, flags *pflag.FlagSet) {
	flags.StringVarP(&h.args.config, "config", "c", "", "config file to use")
}

func (h *devicesHandler) Handle(ctx context.Context, args []string) error {
	cfg, err := readConfig(h.args.config)
	if err != nil {
		return errors.Trace(err)
	}

	mediaDevices := devices.NewRTPDevices(devices.RTPDevicesParams{
		Log:      h.props.Log,
		Registry: codecs.NewRegistryDefault(),
		Devices:  cfg.Devices,
	})

	list, err := mediaDevices.EnumerateDevices(ctx)
	if err != nil {
		return errors.Annotate(err, "enumerate devices")
	}

	w := tabwriter.NewWriter(h.props.stdout(), 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "ID\tKIND\tLABEL")

	for _, d := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.ID, d.Kind, d.Label)
	}

	return errors.Trace(w.Flush())
}

func newDevicesCmd(props Props) *command.Command {
	h := &devicesHandler{
		props: props,
	}

	return command.New(command.Params{
		Name:         "devices",
		Desc:         "Lists the configured media devices",
		FlagRegistry: h,
		Handler:      h,
	})
}

func readConfig(filename string) (client.Config, error) {
	configFiles := []string{}
	if filename != "" {
		configFiles = append(configFiles, filename)
	}

	cfg, err := client.ReadConfig(configFiles)

	return cfg, errors.Annotate(err, "read config")
}
