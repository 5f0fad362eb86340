package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/paper-pigeon/backend/internal/bootstrap"
	"github.com/paper-pigeon/backend/internal/rebuild"
	"github.com/paper-pigeon/backend/pkg/leaselock"
)

func newRebuildCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the graph from the source store and persist the artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := bootstrap.Setup(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			if !c.Artifact.Writable() {
				return fmt.Errorf("artifact store %s is read-only", c.Artifact.Location())
			}

			res, err := runRebuild(cmd.Context(), c.Rebuilder, c.Lease, c.LeaseKey)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "rebuilt %s: %d nodes, %d links in %s (%d attempts)\n",
				c.Artifact.Location(), res.Nodes(), res.Links(), res.TotalDuration, res.Attempts)
			return nil
		},
	}
}

type rebuilder interface {
	RebuildAndPersist(ctx context.Context) (*rebuild.Result, error)
}

// runRebuild rebuilds under the shared lease so it never races the server or
// a worker writing the same artifact.
func runRebuild(ctx context.Context, r rebuilder, lease leaselock.Locker, key string) (*rebuild.Result, error) {
	var res *rebuild.Result
	err := lease.WithLease(ctx, key, func(ctx context.Context) error {
		var err error
		res, err = r.RebuildAndPersist(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
