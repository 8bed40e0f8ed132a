// Command spawnd drives the Runtime Bootstrap (spec.md §4.10): it brings
// up one in-process cluster of servers ring by ring, waiting on the Spawn
// Barrier (spec.md §4.3) between rings so dependent services never start
// early (Name before SysV/RMem, RMem before VFS).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nanvix/multikernel-sub001/internal/barrier"
	"github.com/nanvix/multikernel-sub001/internal/bootstrap"
	"github.com/nanvix/multikernel-sub001/internal/connreg"
	"github.com/nanvix/multikernel-sub001/internal/limits"
	"github.com/nanvix/multikernel-sub001/internal/nameserver"
	"github.com/nanvix/multikernel-sub001/internal/ramdisk"
	"github.com/nanvix/multikernel-sub001/internal/rmem"
	"github.com/nanvix/multikernel-sub001/internal/sysv"
	"github.com/nanvix/multikernel-sub001/internal/transport"
	"github.com/nanvix/multikernel-sub001/internal/vfs"
)

func main() {
	root := &cobra.Command{
		Use:   "spawnd",
		Short: "brings up one nanvix cluster ring by ring",
		RunE: func(cmd *cobra.Command, args []string) error {
			fabric := transport.NewMemFabric()
			b := barrier.New(true, 0)

			endpoints := map[string]transport.Endpoint{
				"nameserverd": {Node: 0, Port: 10},
				"sysvd":       {Node: 0, Port: 20},
				"rmemd":       {Node: 0, Port: 30},
				"vfsd":        {Node: 1, Port: 40},
			}

			err := barrier.RunRings(cmd.Context(), b, func(ctx context.Context, r barrier.Ring) error {
				switch r {
				case limits.RING_0:
					srv := nameserver.NewServer()
					go bootstrap.NewServer("nameserverd", endpoints["nameserverd"], fabric, srv.Dispatch).Serve()
				case limits.RING_1:
					svc := sysv.NewService()
					go bootstrap.NewServer("sysvd", endpoints["sysvd"], fabric, svc.Dispatch).Serve()
					store := rmem.NewStore()
					go bootstrap.NewServer("rmemd", endpoints["rmemd"], fabric, store.Dispatch).Serve()
				case limits.RING_2:
					dev, derr := ramdisk.NewMemDevice(limits.RMEM_NUM_BLOCKS)
					if derr != nil {
						return derr
					}
					fs, ferr := vfs.Format(dev)
					if ferr != 0 {
						return fmt.Errorf("format: %v", ferr)
					}
					svc := vfs.NewService(fs, connreg.New())
					go bootstrap.NewServer("vfsd", endpoints["vfsd"], fabric, svc.Dispatch).Serve()
				}
				return nil
			})
			if err != nil {
				return err
			}
			logrus.Info("spawn rings complete, cluster up")
			select {}
		},
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
