// Command sutractl is the thin CLI wrapper over the master's HTTP control
// surface: status, list-agents, spawn, stop, node-status,
// all honoring --master host:port (default localhost:7000).
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/sutra-db/sutra/internal/clustermeta"
)

func main() {
	app := &cli.App{
		Name:  "sutractl",
		Usage: "control surface for a sutra cluster's master",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "master", Value: "localhost:7000", Usage: "master host:port"},
		},
		Commands: []*cli.Command{
			statusCommand,
			listAgentsCommand,
			spawnCommand,
			stopCommand,
			nodeStatusCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "sutractl:", err)
		os.Exit(1)
	}
}

func masterURL(c *cli.Context, path string) string {
	return "http://" + c.String("master") + path
}

// statusCommand prints a cluster summary and exits 0 if every agent is
// healthy, 1 if any is degraded, 2 if any is offline.
var statusCommand = &cli.Command{
	Name:  "status",
	Usage: "print cluster summary",
	Action: func(c *cli.Context) error {
		var agents []clustermeta.AgentInfo
		if err := clustermeta.GetJSON(context.Background(), masterURL(c, "/agents"), &agents); err != nil {
			return err
		}
		worst := clustermeta.AgentHealthy
		for _, a := range agents {
			fmt.Printf("%s\t%s\t%s\n", a.ID, a.Addr, a.Status)
			if a.Status == clustermeta.AgentOffline {
				worst = clustermeta.AgentOffline
			} else if a.Status == clustermeta.AgentDegraded && worst != clustermeta.AgentOffline {
				worst = clustermeta.AgentDegraded
			}
		}
		switch worst {
		case clustermeta.AgentOffline:
			os.Exit(2)
		case clustermeta.AgentDegraded:
			os.Exit(1)
		}
		return nil
	},
}

var listAgentsCommand = &cli.Command{
	Name:  "list-agents",
	Usage: "tabulate agents and their nodes",
	Action: func(c *cli.Context) error {
		var agents []clustermeta.AgentInfo
		if err := clustermeta.GetJSON(context.Background(), masterURL(c, "/agents"), &agents); err != nil {
			return err
		}
		var nodes []clustermeta.StorageNodeInfo
		if err := clustermeta.GetJSON(context.Background(), masterURL(c, "/nodes"), &nodes); err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "AGENT\tADDR\tSTATUS\tNODES")
		for _, a := range agents {
			count := 0
			for _, n := range nodes {
				if n.AgentID == a.ID {
					count++
				}
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", a.ID, a.Addr, a.Status, count)
		}
		return tw.Flush()
	},
}

var spawnCommand = &cli.Command{
	Name:  "spawn",
	Usage: "request a new storage node",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "agent", Required: true},
		&cli.IntFlag{Name: "port", Required: true},
		&cli.StringFlag{Name: "storage-path", Required: true},
		&cli.IntFlag{Name: "memory", Usage: "advisory memory ceiling in MB"},
		&cli.StringFlag{Name: "node", Usage: "node id; defaults to agent-port"},
		&cli.StringFlag{Name: "shard", Usage: "shard id; defaults to the node id"},
	},
	Action: func(c *cli.Context) error {
		agentID := c.String("agent")
		nodeID := c.String("node")
		if nodeID == "" {
			nodeID = fmt.Sprintf("%s-%d", agentID, c.Int("port"))
		}
		shardID := c.String("shard")
		if shardID == "" {
			shardID = nodeID
		}
		body := struct {
			AgentID string `json:"agent_id"`
			clustermeta.SpawnNodeRequest
		}{
			AgentID: agentID,
			SpawnNodeRequest: clustermeta.SpawnNodeRequest{
				NodeID: nodeID, ShardID: shardID, Port: c.Int("port"),
				StoragePath: c.String("storage-path"), MemoryMB: c.Int("memory"),
			},
		}
		if err := clustermeta.PostJSON(context.Background(), masterURL(c, "/nodes/spawn"), body, nil); err != nil {
			return err
		}
		fmt.Println("spawned", nodeID, "on", agentID)
		return nil
	},
}

var stopCommand = &cli.Command{
	Name:  "stop",
	Usage: "gracefully stop a storage node",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "node", Required: true},
		&cli.StringFlag{Name: "agent", Usage: "agent hosting the node (informational)"},
	},
	Action: func(c *cli.Context) error {
		nodeID := c.String("node")
		url := masterURL(c, "/nodes/"+nodeID+"/stop")
		if err := clustermeta.PostJSON(context.Background(), url, struct{}{}, nil); err != nil {
			return err
		}
		fmt.Println("stopped", nodeID)
		return nil
	},
}

var nodeStatusCommand = &cli.Command{
	Name:  "node-status",
	Usage: "detail for one node",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "node", Required: true},
	},
	Action: func(c *cli.Context) error {
		var info clustermeta.StorageNodeInfo
		url := masterURL(c, "/nodes/"+c.String("node"))
		if err := clustermeta.GetJSON(context.Background(), url, &info); err != nil {
			return err
		}
		fmt.Printf("id:       %s\n", info.ID)
		fmt.Printf("agent:    %s\n", info.AgentID)
		fmt.Printf("shard:    %s\n", info.ShardID)
		fmt.Printf("endpoint: %s\n", info.Endpoint)
		fmt.Printf("status:   %s\n", info.Status)
		fmt.Printf("restarts: %d\n", info.RestartCount)
		return nil
	},
}
