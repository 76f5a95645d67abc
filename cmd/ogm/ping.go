package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/ogm/internal/graph"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check connectivity to the configured Neo4j database",
	RunE:  runPing,
}

func runPing(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client, err := connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close(ctx)

	if err := client.HealthCheck(ctx); err != nil {
		return err
	}
	info := graph.GetClusterInfo(ctx, client.Driver(), client.Database())

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ok: %s\n", client)
	if info.IsCluster {
		fmt.Fprintf(out, "cluster: %d leader(s), %d follower(s), %d read replica(s)\n",
			info.LeaderCount, info.FollowerCount, info.ReadReplicaCount)
	} else {
		fmt.Fprintln(out, "single instance")
	}
	return nil
}
