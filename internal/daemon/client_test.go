package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
)

// serveOnce answers a single connection with canned per-method responses.
func serveOnce(t *testing.T, stateDir string, handler func(req request) response) {
	t.Helper()

	l, err := net.Listen("unix", filepath.Join(stateDir, SocketName))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				line, err := bufio.NewReader(conn).ReadBytes('\n')
				if err != nil {
					return
				}
				var req request
				if err := json.Unmarshal(line, &req); err != nil {
					return
				}
				json.NewEncoder(conn).Encode(handler(req))
			}()
		}
	}()
}

func TestStatusNoSocket(t *testing.T) {
	t.Parallel()

	c := Connect(t.TempDir())
	status, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status != StatusDead {
		t.Errorf("Status() = %v, want dead", status)
	}
}

func TestStatusAlive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	serveOnce(t, dir, func(req request) response {
		if req.Method != "status" {
			t.Errorf("method = %q, want status", req.Method)
		}
		return response{Result: json.RawMessage(`"alive"`)}
	})

	status, err := Connect(dir).Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status != StatusAlive {
		t.Errorf("Status() = %v, want alive", status)
	}
}

func TestListMounts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	serveOnce(t, dir, func(req request) response {
		return response{Result: json.RawMessage(`[{"path":"/mnt/repo","state":"RUNNING"}]`)}
	})

	mounts, err := Connect(dir).ListMounts(context.Background())
	if err != nil {
		t.Fatalf("ListMounts() error = %v", err)
	}
	if len(mounts) != 1 || mounts[0].Path != "/mnt/repo" || mounts[0].State != MountRunning {
		t.Errorf("ListMounts() = %+v", mounts)
	}
}

func TestCallError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	serveOnce(t, dir, func(req request) response {
		return response{Error: "mount not found"}
	})

	err := Connect(dir).Mount(context.Background(), "/mnt/repo")
	if err == nil {
		t.Fatal("Mount() error = nil, want daemon error")
	}
}

func TestResetParentCommitsEncoding(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	serveOnce(t, dir, func(req request) response {
		if got, want := req.Params["parent"], "0102"; got != want {
			t.Errorf("parent param = %v, want %q", got, want)
		}
		return response{Result: json.RawMessage(`null`)}
	})

	if err := Connect(dir).ResetParentCommits(context.Background(), "/mnt/repo", []byte{1, 2}); err != nil {
		t.Fatalf("ResetParentCommits() error = %v", err)
	}
}
