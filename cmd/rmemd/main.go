// Command rmemd runs the RMem Service (spec.md §4.6) as a standalone
// daemon.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nanvix/multikernel-sub001/internal/bootstrap"
	"github.com/nanvix/multikernel-sub001/internal/config"
	"github.com/nanvix/multikernel-sub001/internal/rmem"
	"github.com/nanvix/multikernel-sub001/internal/transport"
)

func main() {
	var (
		node       uint16
		port       uint16
		configPath string
	)

	root := &cobra.Command{
		Use:   "rmemd",
		Short: "runs the nanvix RMem Service",
		RunE: func(cmd *cobra.Command, args []string) error {
			self := transport.Endpoint{Node: node, Port: port}
			if configPath != "" {
				reg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				if placement, ok := reg.Lookup("rmemd"); ok {
					self = transport.Endpoint{Node: placement.Node, Port: placement.Port}
				}
			}
			store := rmem.NewStore()
			boot := bootstrap.NewServer("rmemd", self, transport.NewMemFabric(), store.Dispatch)
			logrus.WithField("endpoint", self.String()).Info("rmemd starting")
			return boot.Serve()
		},
	}
	root.Flags().Uint16Var(&node, "node", 0, "node number")
	root.Flags().Uint16Var(&port, "port", 30, "port number")
	root.Flags().StringVar(&configPath, "config", "", "server registry TOML path")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
