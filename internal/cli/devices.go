package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// DevicesCmd creates the devices command.
// Lists the audio input devices miniaudio can open.
func DevicesCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available audio input devices",
		Long: `List the audio input devices detected on this machine.

Voice notes are recorded from the system default input, marked with *.`,
		Example: `  voicenote devices`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListDevices(env)
		},
	}
}

// runListDevices lists available audio devices.
func runListDevices(env *Env) error {
	devices, err := env.DeviceLister.ListDevices()
	if err != nil {
		return err
	}

	for _, d := range devices {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		fmt.Fprintf(env.Stdout, "%s %s\n", marker, d.Name)
	}
	return nil
}
