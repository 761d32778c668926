package doctor

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/vireofs/vireo/internal/checkout"
	"github.com/vireofs/vireo/internal/daemon"
	"github.com/vireofs/vireo/internal/output"
	"github.com/vireofs/vireo/internal/scm"
	"github.com/vireofs/vireo/internal/style"
)

type doctorEnv struct {
	daemon *fakeDaemon
	table  *fakeMountTable
	watch  *fakeWatcher
	repo   *fakeRepo
	buf    *bytes.Buffer
}

// newHealthyEnv wires up fakes for a single checkout that passes every
// check.
func newHealthyEnv(t *testing.T, co *checkout.Checkout) *doctorEnv {
	t.Helper()

	parent := rawHash(0x01)
	writeHealthyMetadata(t, co, parent)

	repo := newFakeRepo(co.BackingRepo)
	repo.addCommit(scm.HexHash(parent))

	d := newFakeDaemon()
	d.mounts = []daemon.MountInfo{{Path: co.Path, State: daemon.MountRunning}}

	return &doctorEnv{
		daemon: d,
		table:  newFakeMountTable(),
		watch:  newFakeWatcher(),
		repo:   repo,
		buf:    &bytes.Buffer{},
	}
}

func (e *doctorEnv) run(t *testing.T, opts Options, checkouts ...*checkout.Checkout) int {
	t.Helper()

	if opts.CWD == "" {
		opts.CWD = "/"
	}
	if opts.UID == 0 {
		opts.UID = testUID
	}
	d := New(output.New(e.buf), style.Plain(), opts, Collaborators{
		Daemon:     e.daemon,
		MountTable: e.table,
		Watcher:    e.watch,
		OpenRepo:   func(root string) scm.Repo { return e.repo },
		Probe:      LstatProbe,
		Checkouts:  checkouts,
	})
	code, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return code
}

func TestRunDaemonNotInUse(t *testing.T) {
	t.Parallel()

	env := &doctorEnv{
		daemon: newFakeDaemon(),
		table:  newFakeMountTable(),
		watch:  newFakeWatcher(),
		buf:    &bytes.Buffer{},
	}
	env.daemon.status = daemon.StatusDead

	code := env.run(t, Options{})
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if got := env.buf.String(); got != "vireod is not in use.\n" {
		t.Errorf("output = %q", got)
	}
}

func TestRunDaemonNotRunning(t *testing.T) {
	t.Parallel()

	co := newTestCheckout(t)
	env := newHealthyEnv(t, co)
	env.daemon.status = daemon.StatusDead

	code := env.run(t, Options{}, co)
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	out := env.buf.String()
	if !strings.Contains(out, "vireod is not running.") {
		t.Errorf("output = %s", out)
	}
	if !strings.Contains(out, "1 issue requires manual attention.") {
		t.Errorf("output = %s", out)
	}
}

func TestRunDaemonStarting(t *testing.T) {
	t.Parallel()

	co := newTestCheckout(t)
	env := newHealthyEnv(t, co)
	env.daemon.status = daemon.StatusStarting

	code := env.run(t, Options{}, co)
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(env.buf.String(), "currently starting") {
		t.Errorf("output = %s", env.buf.String())
	}
}

func TestRunHealthy(t *testing.T) {
	t.Parallel()

	co := newTestCheckout(t)
	env := newHealthyEnv(t, co)

	code := env.run(t, Options{}, co)
	if code != 0 {
		t.Errorf("exit code = %d, want 0\noutput: %s", code, env.buf.String())
	}
	if got := env.buf.String(); got != "No issues detected.\n" {
		t.Errorf("output = %q", got)
	}
}

func TestRunFixesProblem(t *testing.T) {
	t.Parallel()

	co := newTestCheckout(t)
	co.Redirections = []string{"buck-out"}
	env := newHealthyEnv(t, co)

	code := env.run(t, Options{}, co)
	if code != 0 {
		t.Errorf("exit code = %d, want 0\noutput: %s", code, env.buf.String())
	}
	if !strings.Contains(env.buf.String(), "Successfully fixed 1 problem.") {
		t.Errorf("output = %s", env.buf.String())
	}
}

func TestRunFixesAcrossCheckouts(t *testing.T) {
	t.Parallel()

	coA := newTestCheckout(t)
	coB := newTestCheckout(t)
	coC := newTestCheckout(t)

	// coA: dirstate disagrees with the daemon's snapshot.
	parentA, driftA := rawHash(0x01), rawHash(0x02)
	writeHealthyMetadata(t, coA, parentA)
	if err := coA.WriteDirstateParents(driftA, nil); err != nil {
		t.Fatal(err)
	}
	repoA := newFakeRepo(coA.BackingRepo)
	repoA.addCommit(scm.HexHash(parentA))
	repoA.addCommit(scm.HexHash(driftA))

	// coB: healthy metadata, but watched by the wrong watcher.
	parentB := rawHash(0x03)
	writeHealthyMetadata(t, coB, parentB)
	repoB := newFakeRepo(coB.BackingRepo)
	repoB.addCommit(scm.HexHash(parentB))

	// coC: metadata directory never created.
	parentC := rawHash(0x04)
	writeSnapshot(t, coC, parentC)
	repoC := newFakeRepo(coC.BackingRepo)
	repoC.addCommit(scm.HexHash(parentC))

	repos := map[string]scm.Repo{
		coA.BackingRepo: repoA,
		coB.BackingRepo: repoB,
		coC.BackingRepo: repoC,
	}

	d := newFakeDaemon()
	d.mounts = []daemon.MountInfo{
		{Path: coA.Path, State: daemon.MountRunning},
		{Path: coB.Path, State: daemon.MountRunning},
		{Path: coC.Path, State: daemon.MountRunning},
	}
	watch := newFakeWatcher()
	watch.watches[coB.Path] = "inotify"

	buf := &bytes.Buffer{}
	doc := New(output.New(buf), style.Plain(), Options{CWD: "/", UID: testUID}, Collaborators{
		Daemon:     d,
		MountTable: newFakeMountTable(),
		Watcher:    watch,
		OpenRepo:   func(root string) scm.Repo { return repos[root] },
		Probe:      LstatProbe,
		Checkouts:  []*checkout.Checkout{coA, coB, coC},
	})
	code, err := doc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0\noutput: %s", code, buf.String())
	}
	if !strings.Contains(buf.String(), "Successfully fixed 3 problems.") {
		t.Errorf("output = %s", buf.String())
	}
	if got := mustDirstateP1(t, coA); !bytes.Equal(got, parentA) {
		t.Errorf("coA dirstate p1 = %x, want snapshot parent %x", got, parentA)
	}
	if got := watch.watches[coB.Path]; got != "vireo" {
		t.Errorf("coB watcher = %q after fix, want %q", got, "vireo")
	}
	if got := mustDirstateP1(t, coC); !bytes.Equal(got, parentC) {
		t.Errorf("coC dirstate p1 = %x, want %x", got, parentC)
	}
}

func TestRunDryRun(t *testing.T) {
	t.Parallel()

	co := newTestCheckout(t)
	co.Redirections = []string{"buck-out"}
	env := newHealthyEnv(t, co)

	code := env.run(t, Options{DryRun: true}, co)
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(env.buf.String(), "Discovered 1 problem during --dry-run") {
		t.Errorf("output = %s", env.buf.String())
	}
}

func TestRunManualSummary(t *testing.T) {
	t.Parallel()

	co := newTestCheckout(t)
	env := newHealthyEnv(t, co)
	env.repo.extensions = []string{"largefiles"}

	code := env.run(t, Options{Extensions: ExtensionLists{Block: []string{"largefiles"}}}, co)
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(env.buf.String(), "1 issue requires manual attention.") {
		t.Errorf("output = %s", env.buf.String())
	}
}

func TestRunAdvisorySummary(t *testing.T) {
	t.Parallel()

	co := newTestCheckout(t)
	env := newHealthyEnv(t, co)
	env.daemon.version = "20260810-091500"

	code := env.run(t, Options{CLIVersion: "20260825-114200"}, co)
	if code != 1 {
		t.Errorf("exit code = %d, want 1\noutput: %s", code, env.buf.String())
	}
	if !strings.Contains(env.buf.String(), "1 issue with recommended fixes.") {
		t.Errorf("output = %s", env.buf.String())
	}
}

func TestRunStaleWorkingDirectory(t *testing.T) {
	t.Parallel()

	co := newTestCheckout(t)
	env := newHealthyEnv(t, co)
	env.table.statErrs["/stale/cwd"] = unix.ENOTCONN

	code := env.run(t, Options{CWD: "/stale/cwd"}, co)
	if code != 0 {
		t.Errorf("exit code = %d, want 0\noutput: %s", code, env.buf.String())
	}
	if !strings.Contains(env.buf.String(), "stale mount instance") {
		t.Errorf("output = %s", env.buf.String())
	}
}

func TestRunChecksSortedOrder(t *testing.T) {
	t.Parallel()

	coB := newTestCheckout(t)
	coA := newTestCheckout(t)
	if coA.Path > coB.Path {
		coA, coB = coB, coA
	}
	// Neither checkout is mounted; the problem reports must come out
	// in path order regardless of argument order.
	env := &doctorEnv{
		daemon: newFakeDaemon(),
		table:  newFakeMountTable(),
		watch:  newFakeWatcher(),
		repo:   newFakeRepo(coA.BackingRepo),
		buf:    &bytes.Buffer{},
	}

	env.run(t, Options{DryRun: true}, coB, coA)
	out := env.buf.String()
	first := strings.Index(out, coA.Path)
	second := strings.Index(out, coB.Path)
	if first == -1 || second == -1 || first > second {
		t.Errorf("problems not reported in sorted order:\n%s", out)
	}
}
