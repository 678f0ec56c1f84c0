package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/notnil/cannode/gpio"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	SerialPort string
	Baud       int
}

// NewTraceCommand drives one trace output by id. Without a serial port the
// pin command is printed instead.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <id> <value>",
		Short: "Write a trace output (1 set, 0 clear, anything else toggles)",
		Example: `  cannode trace 4 1 --serial-port /dev/ttyUSB0
  cannode trace 3 2`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid trace id %q", args[0])
			}
			value, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid trace value %q", args[1])
			}

			var bank *gpio.SerialBank
			if opts.SerialPort != "" {
				bank, err = gpio.OpenSerialBank(opts.SerialPort, opts.Baud)
				if err != nil {
					return err
				}
			} else {
				bank = gpio.NewSerialBank(nopCloser{cmd.OutOrStdout()})
			}
			defer bank.Close()

			tr, err := gpio.NewTrace(bank, gpio.DefaultTraceLines)
			if err != nil {
				return err
			}
			return tr.Write(id, value)
		},
	}

	cmd.Flags().StringVar(&opts.SerialPort, "serial-port", "", "serial port of the pin controller")
	cmd.Flags().IntVar(&opts.Baud, "baud", 115200, "serial baud rate")

	return cmd
}

// nopCloser keeps the bank from closing the command's output.
type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
