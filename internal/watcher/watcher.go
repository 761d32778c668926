// Package watcher talks to the watchman file-watch service.
package watcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vireofs/vireo/internal/cmd"
)

// VireoWatcher is the watcher type a healthy vireo mount is watched with.
const VireoWatcher = "vireo"

// Client is the subset of watchman doctor needs.
type Client interface {
	// WatchList returns the roots watchman currently watches.
	WatchList(ctx context.Context) ([]string, error)
	// WatchProject establishes (or queries) a watch on root and returns
	// the watcher type serving it.
	WatchProject(ctx context.Context, root string) (string, error)
	WatchDel(ctx context.Context, root string) error
}

// CLIClient shells out to the watchman binary.
type CLIClient struct{}

func New() *CLIClient {
	return &CLIClient{}
}

func (c *CLIClient) run(ctx context.Context, result any, args ...string) error {
	args = append([]string{"--output-encoding=json"}, args...)
	out, err := cmd.OutputContext(ctx, "", "watchman", args...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(out, result); err != nil {
		return fmt.Errorf("decoding watchman %s output: %w", args[1], err)
	}
	return nil
}

func (c *CLIClient) WatchList(ctx context.Context) ([]string, error) {
	var resp struct {
		Roots []string `json:"roots"`
		Error string   `json:"error"`
	}
	if err := c.run(ctx, &resp, "watch-list"); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("watchman watch-list: %s", resp.Error)
	}
	return resp.Roots, nil
}

func (c *CLIClient) WatchProject(ctx context.Context, root string) (string, error) {
	var resp struct {
		Watcher string `json:"watcher"`
		Error   string `json:"error"`
	}
	if err := c.run(ctx, &resp, "watch-project", root); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("watchman watch-project %s: %s", root, resp.Error)
	}
	return resp.Watcher, nil
}

func (c *CLIClient) WatchDel(ctx context.Context, root string) error {
	var resp struct {
		Error string `json:"error"`
	}
	if err := c.run(ctx, &resp, "watch-del", root); err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("watchman watch-del %s: %s", root, resp.Error)
	}
	return nil
}
