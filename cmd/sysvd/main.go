// Command sysvd runs the SysV Service (spec.md §4.5) as a standalone
// daemon.
package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nanvix/multikernel-sub001/internal/bootstrap"
	"github.com/nanvix/multikernel-sub001/internal/config"
	"github.com/nanvix/multikernel-sub001/internal/metrics"
	"github.com/nanvix/multikernel-sub001/internal/sysv"
	"github.com/nanvix/multikernel-sub001/internal/transport"
)

func main() {
	var (
		node       uint16
		port       uint16
		configPath string
		profileDir string
	)

	root := &cobra.Command{
		Use:   "sysvd",
		Short: "runs the nanvix SysV Service",
		RunE: func(cmd *cobra.Command, args []string) error {
			self := transport.Endpoint{Node: node, Port: port}
			if configPath != "" {
				reg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				if placement, ok := reg.Lookup("sysvd"); ok {
					self = transport.Endpoint{Node: placement.Node, Port: placement.Port}
				}
			}
			svc := sysv.NewService()
			if profileDir != "" {
				reg := prometheus.NewRegistry()
				store := metrics.NewStore(reg, "sysvd")
				svc.SetMetrics(store)
				defer func() {
					if err := metrics.DumpProfile(profileDir, store.Snapshot()); err != nil {
						logrus.WithError(err).Warn("failed to dump sysvd profile")
					}
				}()
			}
			boot := bootstrap.NewServer("sysvd", self, transport.NewMemFabric(), svc.Dispatch)
			logrus.WithField("endpoint", self.String()).Info("sysvd starting")
			return boot.Serve()
		},
	}
	root.Flags().Uint16Var(&node, "node", 0, "node number")
	root.Flags().Uint16Var(&port, "port", 20, "port number")
	root.Flags().StringVar(&configPath, "config", "", "server registry TOML path")
	root.Flags().StringVar(&profileDir, "profile-dir", "", "write a pprof snapshot of queue/semaphore counters here on shutdown")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
