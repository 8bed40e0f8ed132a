// Command nameserverd runs the Name Service (spec.md §4.4) as a standalone
// daemon, its node/port/config flags parsed with spf13/cobra (SPEC_FULL.md
// DOMAIN STACK "Server daemons CLI", grounded on dh-cli).
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nanvix/multikernel-sub001/internal/bootstrap"
	"github.com/nanvix/multikernel-sub001/internal/config"
	"github.com/nanvix/multikernel-sub001/internal/nameserver"
	"github.com/nanvix/multikernel-sub001/internal/transport"
)

func main() {
	var (
		node       uint16
		port       uint16
		configPath string
	)

	root := &cobra.Command{
		Use:   "nameserverd",
		Short: "runs the nanvix Name Service",
		RunE: func(cmd *cobra.Command, args []string) error {
			self := transport.Endpoint{Node: node, Port: port}
			if configPath != "" {
				reg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				if placement, ok := reg.Lookup("nameserverd"); ok {
					self = transport.Endpoint{Node: placement.Node, Port: placement.Port}
				}
			}
			srv := nameserver.NewServer()
			boot := bootstrap.NewServer("nameserverd", self, transport.NewMemFabric(), srv.Dispatch)
			logrus.WithField("endpoint", self.String()).Info("nameserverd starting")
			return boot.Serve()
		},
	}
	root.Flags().Uint16Var(&node, "node", 0, "node number")
	root.Flags().Uint16Var(&port, "port", 10, "port number")
	root.Flags().StringVar(&configPath, "config", "", "server registry TOML path")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
