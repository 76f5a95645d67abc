package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// RoutingMode defines read/write routing for cluster deployments. Reads go
// to followers and read replicas, writes to the leader. On a single
// instance routing has no effect.
type RoutingMode string

const (
	RoutingRead  RoutingMode = "read"
	RoutingWrite RoutingMode = "write"
)

// ExecuteWithRouting runs an auto-commit query with an explicit routing hint
func ExecuteWithRouting(
	ctx context.Context,
	driver neo4j.DriverWithContext,
	query string,
	params map[string]any,
	mode RoutingMode,
	database string,
) (*neo4j.EagerResult, error) {
	options := []neo4j.ExecuteQueryConfigurationOption{
		neo4j.ExecuteQueryWithDatabase(database),
	}
	switch mode {
	case RoutingRead:
		options = append(options, neo4j.ExecuteQueryWithReadersRouting())
	case RoutingWrite:
		options = append(options, neo4j.ExecuteQueryWithWritersRouting())
	}

	return neo4j.ExecuteQuery(ctx, driver, query, params,
		neo4j.EagerResultTransformer,
		options...)
}

// SessionWithRouting creates a session whose access mode matches mode
func SessionWithRouting(
	ctx context.Context,
	driver neo4j.DriverWithContext,
	mode RoutingMode,
	database string,
) neo4j.SessionWithContext {
	config := neo4j.SessionConfig{
		DatabaseName: database,
	}
	switch mode {
	case RoutingRead:
		config.AccessMode = neo4j.AccessModeRead
	case RoutingWrite:
		config.AccessMode = neo4j.AccessModeWrite
	}
	return driver.NewSession(ctx, config)
}

// RoutingStrategy maps operation names to routing modes
type RoutingStrategy struct {
	DefaultMode RoutingMode
}

// NewRoutingStrategy routes unknown operations to the leader; an OGM
// mostly writes.
func NewRoutingStrategy() *RoutingStrategy {
	return &RoutingStrategy{DefaultMode: RoutingWrite}
}

// GetRoutingForOperation returns the routing mode for an operation
func (rs *RoutingStrategy) GetRoutingForOperation(operation string) RoutingMode {
	switch operation {
	case OpReload, OpHealthCheck:
		return RoutingRead
	case OpSave, OpDelete, OpSchema:
		return RoutingWrite
	}
	return rs.DefaultMode
}

// ClusterInfo describes the cluster topology
type ClusterInfo struct {
	IsCluster        bool
	LeaderCount      int
	FollowerCount    int
	ReadReplicaCount int
}

// GetClusterInfo queries the cluster topology. Single instances and users
// without permission to list the topology report a single leader.
func GetClusterInfo(ctx context.Context, driver neo4j.DriverWithContext, database string) *ClusterInfo {
	query := `
		CALL dbms.cluster.overview()
		YIELD role
		RETURN role, count(*) as count
	`
	result, err := neo4j.ExecuteQuery(ctx, driver, query, nil,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(database))
	if err != nil {
		return &ClusterInfo{LeaderCount: 1}
	}

	info := &ClusterInfo{IsCluster: true}
	for _, record := range result.Records {
		role, _ := record.Get("role")
		count, _ := record.Get("count")

		roleStr, _ := role.(string)
		countInt, _ := count.(int64)

		switch roleStr {
		case "LEADER":
			info.LeaderCount = int(countInt)
		case "FOLLOWER":
			info.FollowerCount = int(countInt)
		case "READ_REPLICA":
			info.ReadReplicaCount = int(countInt)
		}
	}
	return info
}
