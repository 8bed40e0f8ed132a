// Command vfsd runs the VFS Core (spec.md §4.9) as a standalone daemon,
// backed by an in-memory ramdisk formatted fresh on each start.
package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nanvix/multikernel-sub001/internal/bootstrap"
	"github.com/nanvix/multikernel-sub001/internal/config"
	"github.com/nanvix/multikernel-sub001/internal/connreg"
	"github.com/nanvix/multikernel-sub001/internal/limits"
	"github.com/nanvix/multikernel-sub001/internal/metrics"
	"github.com/nanvix/multikernel-sub001/internal/ramdisk"
	"github.com/nanvix/multikernel-sub001/internal/transport"
	"github.com/nanvix/multikernel-sub001/internal/vfs"
)

func main() {
	var (
		node       uint16
		port       uint16
		configPath string
		diskPath   string
		profileDir string
	)

	root := &cobra.Command{
		Use:   "vfsd",
		Short: "runs the nanvix VFS Core",
		RunE: func(cmd *cobra.Command, args []string) error {
			self := transport.Endpoint{Node: node, Port: port}
			if configPath != "" {
				reg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				if placement, ok := reg.Lookup("vfsd"); ok {
					self = transport.Endpoint{Node: placement.Node, Port: placement.Port}
				}
			}

			var dev *ramdisk.Device
			var err error
			if diskPath != "" {
				dev, err = ramdisk.OpenFileDevice(diskPath)
			} else {
				dev, err = ramdisk.NewMemDevice(limits.RMEM_NUM_BLOCKS)
			}
			if err != nil {
				return err
			}
			fs, ferr := vfs.Format(dev)
			if ferr != 0 {
				return fmt.Errorf("format: %v", ferr)
			}

			svc := vfs.NewService(fs, connreg.New())
			var store *metrics.Store
			var reg *prometheus.Registry
			if profileDir != "" {
				reg = prometheus.NewRegistry()
				store = metrics.NewStore(reg, "vfsd")
				svc.SetMetrics(store)
				defer func() {
					if err := metrics.DumpProfile(profileDir, store.Snapshot()); err != nil {
						logrus.WithError(err).Warn("failed to dump vfsd profile")
					}
				}()
			}
			boot := bootstrap.NewServer("vfsd", self, transport.NewMemFabric(), svc.Dispatch)
			logrus.WithField("endpoint", self.String()).Info("vfsd starting")
			return boot.Serve()
		},
	}
	root.Flags().Uint16Var(&node, "node", 1, "node number")
	root.Flags().Uint16Var(&port, "port", 40, "port number")
	root.Flags().StringVar(&configPath, "config", "", "server registry TOML path")
	root.Flags().StringVar(&diskPath, "disk", "", "backing disk image path (defaults to in-memory)")
	root.Flags().StringVar(&profileDir, "profile-dir", "", "write a pprof snapshot of cache counters here on shutdown")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
