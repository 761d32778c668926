package daemon

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// SocketName is the daemon's control socket inside the state directory.
const SocketName = "socket"

// SocketClient speaks newline-delimited JSON requests over the daemon's
// unix control socket. Each call opens a fresh connection.
type SocketClient struct {
	socketPath string
}

// Connect returns a client for the daemon owning the given state
// directory. The daemon counts as dead when the socket is absent.
func Connect(stateDir string) *SocketClient {
	return &SocketClient{socketPath: filepath.Join(stateDir, SocketName)}
}

type request struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

type response struct {
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result"`
}

func (c *SocketClient) call(ctx context.Context, method string, params map[string]any, result any) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if err := json.NewEncoder(conn).Encode(request{Method: method, Params: params}); err != nil {
		return fmt.Errorf("sending %s request: %w", method, err)
	}
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("reading %s response: %w", method, err)
	}
	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if resp.Error != "" {
		return fmt.Errorf("vireod %s: %s", method, resp.Error)
	}
	if result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}

func (c *SocketClient) Status(ctx context.Context) (Status, error) {
	if _, err := os.Lstat(c.socketPath); os.IsNotExist(err) {
		return StatusDead, nil
	}
	var status string
	if err := c.call(ctx, "status", nil, &status); err != nil {
		// A socket the daemon no longer answers on is a dead daemon,
		// not an RPC failure.
		return StatusDead, nil
	}
	switch status {
	case "starting":
		return StatusStarting, nil
	case "alive":
		return StatusAlive, nil
	case "stopping":
		return StatusStopping, nil
	}
	return StatusDead, nil
}

func (c *SocketClient) Version(ctx context.Context) (string, error) {
	var version string
	err := c.call(ctx, "version", nil, &version)
	return version, err
}

func (c *SocketClient) ListMounts(ctx context.Context) ([]MountInfo, error) {
	var mounts []MountInfo
	err := c.call(ctx, "listMounts", nil, &mounts)
	return mounts, err
}

func (c *SocketClient) Mount(ctx context.Context, path string) error {
	return c.call(ctx, "mount", map[string]any{"path": path}, nil)
}

func (c *SocketClient) DebugInodeStatus(ctx context.Context, mount string, flags uint64) ([]TreeInodeInfo, error) {
	var trees []TreeInodeInfo
	err := c.call(ctx, "debugInodeStatus", map[string]any{"mount": mount, "flags": flags}, &trees)
	return trees, err
}

func (c *SocketClient) ResetParentCommits(ctx context.Context, mount string, parent []byte) error {
	return c.call(ctx, "resetParentCommits", map[string]any{
		"mount":  mount,
		"parent": hex.EncodeToString(parent),
	}, nil)
}

func (c *SocketClient) MatchFilesystem(ctx context.Context, mount string, paths []string) ([]string, error) {
	var failed []string
	err := c.call(ctx, "matchFilesystem", map[string]any{"mount": mount, "paths": paths}, &failed)
	return failed, err
}

func (c *SocketClient) InvalidateNonMaterialized(ctx context.Context, mount string) error {
	return c.call(ctx, "invalidateNonMaterialized", map[string]any{"mount": mount}, nil)
}

func (c *SocketClient) Counters(ctx context.Context) (map[string]int64, error) {
	var counters map[string]int64
	err := c.call(ctx, "counters", nil, &counters)
	return counters, err
}

func (c *SocketClient) InodeCounts(ctx context.Context, mount string) (InodeCounts, error) {
	var counts InodeCounts
	err := c.call(ctx, "inodeCounts", map[string]any{"mount": mount}, &counts)
	return counts, err
}
