// Package localnet runs a throwaway ledger node in a container for local
// benchmark runs.
package localnet

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"
	"go.uber.org/zap"
)

// Label marks containers started by this package.
const Label = "rollbench"

type Options struct {
	Image          string
	RPCPort        int
	StartupTimeout time.Duration
	Logger         *zap.Logger
}

type Node struct {
	ID   string
	Port int

	cli *client.Client
	log *zap.Logger
}

// Command is the node invocation: a fresh genesis with a faucet, serving RPC
// on port.
func Command(port int) []string {
	return []string{
		"sui", "start",
		"--with-faucet",
		"--force-regenesis",
		"--fullnode-rpc-port", strconv.Itoa(port),
	}
}

// Start creates and starts the node container on the host network and waits
// until its RPC port accepts connections. The container is removed if it
// never becomes ready.
func Start(ctx context.Context, opts Options) (*Node, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}

	initTrue := true
	hostCfg := &container.HostConfig{
		NetworkMode: container.NetworkMode("host"),
		Init:        &initTrue,
	}
	containerCfg := &container.Config{
		Image:  opts.Image,
		Cmd:    Command(opts.RPCPort),
		Labels: map[string]string{Label: "true"},
	}
	createResp, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:     containerCfg,
		HostConfig: hostCfg,
	})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("creating container: %w", err)
	}
	n := &Node{ID: createResp.ID, Port: opts.RPCPort, cli: cli, log: log}

	if _, err := cli.ContainerStart(ctx, n.ID, client.ContainerStartOptions{}); err != nil {
		n.Stop(context.Background())
		return nil, fmt.Errorf("starting container: %w", err)
	}
	log.Info("localnet starting", zap.String("container", n.ID), zap.String("image", opts.Image), zap.Int("port", n.Port))

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(n.Port))
	if err := WaitForPort(ctx, addr, opts.StartupTimeout); err != nil {
		n.dumpLogs()
		n.Stop(context.Background())
		return nil, fmt.Errorf("localnet did not start: %w", err)
	}
	return n, nil
}

func (n *Node) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", n.Port)
}

// Stop force-removes the container and closes the docker client.
func (n *Node) Stop(ctx context.Context) error {
	if n == nil || n.cli == nil {
		return nil
	}
	defer n.cli.Close()
	if _, err := n.cli.ContainerRemove(ctx, n.ID, client.ContainerRemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("removing container %s: %w", n.ID, err)
	}
	n.log.Info("localnet stopped", zap.String("container", n.ID))
	return nil
}

func (n *Node) dumpLogs() {
	logReader, _ := n.cli.ContainerLogs(context.Background(), n.ID, client.ContainerLogsOptions{ShowStdout: true, ShowStderr: true, Tail: "100"})
	if logReader != nil {
		logData, _ := io.ReadAll(logReader)
		logReader.Close()
		if len(logData) > 0 {
			n.log.Warn("localnet container logs", zap.ByteString("logs", logData))
		}
	}
}

// WaitForPort dials addr until it accepts a connection, timeout passes or ctx
// is done.
func WaitForPort(ctx context.Context, addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var d net.Dialer
	for {
		dialCtx, cancel := context.WithTimeout(ctx, time.Second)
		conn, err := d.DialContext(dialCtx, "tcp", addr)
		cancel()
		if err == nil {
			conn.Close()
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%s not ready after %s", addr, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}
