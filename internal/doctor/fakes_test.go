package doctor

import (
	"context"
	"fmt"
	"os"

	"github.com/vireofs/vireo/internal/daemon"
	"github.com/vireofs/vireo/internal/mtab"
	"github.com/vireofs/vireo/internal/scm"
)

// fakeMountTable is an in-memory mtab.MountTable. Probe outcomes and
// unmount failures are injected per path; unmount calls are recorded.
type fakeMountTable struct {
	mounts     []mtab.MountInfo
	stats      map[string]mtab.MTStat
	statErrs   map[string]error
	probeErrs  map[string]error
	canUnmount bool

	lazyFails  map[string]bool
	forceFails map[string]bool
	lazyCalls  []string
	forceCalls []string
}

func newFakeMountTable() *fakeMountTable {
	return &fakeMountTable{
		stats:      map[string]mtab.MTStat{},
		statErrs:   map[string]error{},
		probeErrs:  map[string]error{},
		lazyFails:  map[string]bool{},
		forceFails: map[string]bool{},
		canUnmount: true,
	}
}

func (t *fakeMountTable) addMount(path, vfstype string, st mtab.MTStat) {
	t.mounts = append(t.mounts, mtab.MountInfo{
		Device:     []byte(mtab.DevicePrefix + "/state" + path),
		MountPoint: []byte(path),
		VFSType:    []byte(vfstype),
	})
	t.stats[path] = st
}

func (t *fakeMountTable) removeMount(path string) {
	kept := t.mounts[:0]
	for _, m := range t.mounts {
		if string(m.MountPoint) != path {
			kept = append(kept, m)
		}
	}
	t.mounts = kept
}

func (t *fakeMountTable) Read() ([]mtab.MountInfo, error) {
	out := make([]mtab.MountInfo, len(t.mounts))
	copy(out, t.mounts)
	return out, nil
}

func (t *fakeMountTable) LStat(path string) (mtab.MTStat, error) {
	if err := t.statErrs[path]; err != nil {
		return mtab.MTStat{}, err
	}
	if st, ok := t.stats[path]; ok {
		return st, nil
	}
	return mtab.MTStat{}, os.ErrNotExist
}

func (t *fakeMountTable) CheckPathAccess(path string, kind mtab.MountKind) error {
	return t.probeErrs[path]
}

func (t *fakeMountTable) UnmountLazy(path string) bool {
	t.lazyCalls = append(t.lazyCalls, path)
	if t.lazyFails[path] {
		return false
	}
	t.removeMount(path)
	return true
}

func (t *fakeMountTable) UnmountForce(path string) bool {
	t.forceCalls = append(t.forceCalls, path)
	if t.forceFails[path] {
		return false
	}
	t.removeMount(path)
	return true
}

func (t *fakeMountTable) CanUnmount() bool { return t.canUnmount }

// fakeDaemon is an in-memory daemon.Client.
type fakeDaemon struct {
	status   daemon.Status
	version  string
	mounts   []daemon.MountInfo
	trees    map[string][]daemon.TreeInodeInfo
	counters map[string]int64
	inodes   map[string]daemon.InodeCounts

	// onReset mimics the daemon rewriting its snapshot record when the
	// parents are reset.
	onReset      func(mount string, parent []byte) error
	resetCalls   int
	matchCalls   [][]string
	matchFailed  []string
	invalidated  []string
	mountedPaths []string
	mountErr     error
}

func newFakeDaemon() *fakeDaemon {
	return &fakeDaemon{
		status:   daemon.StatusAlive,
		trees:    map[string][]daemon.TreeInodeInfo{},
		counters: map[string]int64{},
		inodes:   map[string]daemon.InodeCounts{},
	}
}

func (d *fakeDaemon) Status(ctx context.Context) (daemon.Status, error) {
	return d.status, nil
}

func (d *fakeDaemon) Version(ctx context.Context) (string, error) {
	return d.version, nil
}

func (d *fakeDaemon) ListMounts(ctx context.Context) ([]daemon.MountInfo, error) {
	out := make([]daemon.MountInfo, len(d.mounts))
	copy(out, d.mounts)
	return out, nil
}

func (d *fakeDaemon) Mount(ctx context.Context, path string) error {
	if d.mountErr != nil {
		return d.mountErr
	}
	d.mountedPaths = append(d.mountedPaths, path)
	d.mounts = append(d.mounts, daemon.MountInfo{Path: path, State: daemon.MountRunning})
	return nil
}

func (d *fakeDaemon) DebugInodeStatus(ctx context.Context, mount string, flags uint64) ([]daemon.TreeInodeInfo, error) {
	return d.trees[mount], nil
}

func (d *fakeDaemon) ResetParentCommits(ctx context.Context, mount string, parent []byte) error {
	d.resetCalls++
	if d.onReset != nil {
		return d.onReset(mount, parent)
	}
	return nil
}

func (d *fakeDaemon) MatchFilesystem(ctx context.Context, mount string, paths []string) ([]string, error) {
	d.matchCalls = append(d.matchCalls, paths)
	return d.matchFailed, nil
}

func (d *fakeDaemon) InvalidateNonMaterialized(ctx context.Context, mount string) error {
	d.invalidated = append(d.invalidated, mount)
	counts := d.inodes[mount]
	counts.Unloaded = 0
	d.inodes[mount] = counts
	return nil
}

func (d *fakeDaemon) Counters(ctx context.Context) (map[string]int64, error) {
	return d.counters, nil
}

func (d *fakeDaemon) InodeCounts(ctx context.Context, mount string) (daemon.InodeCounts, error) {
	return d.inodes[mount], nil
}

// fakeRepo is an in-memory scm.Repo.
type fakeRepo struct {
	root       string
	commits    map[string]bool
	tip        string
	extensions []string
	recovered  bool
}

func newFakeRepo(root string) *fakeRepo {
	return &fakeRepo{root: root, commits: map[string]bool{}}
}

func (r *fakeRepo) addCommit(hexHash string) {
	r.commits[hexHash] = true
	r.tip = hexHash
}

func (r *fakeRepo) Root() string { return r.root }

func (r *fakeRepo) CommitExists(ctx context.Context, hexHash string) (bool, error) {
	return r.commits[hexHash], nil
}

func (r *fakeRepo) TipCommit(ctx context.Context) (string, error) {
	if r.tip == "" {
		return "", fmt.Errorf("empty repository")
	}
	return r.tip, nil
}

func (r *fakeRepo) Recover(ctx context.Context) error {
	r.recovered = true
	return os.Remove(scm.JournalPath(r.root))
}

func (r *fakeRepo) Extensions(ctx context.Context) ([]string, error) {
	return r.extensions, nil
}

// fakeWatcher is an in-memory watcher.Client. WatchProject establishes
// a healthy vireo watch, like the real service does for vireo mounts.
type fakeWatcher struct {
	watches     map[string]string
	delCalls    []string
	projectCall []string
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{watches: map[string]string{}}
}

func (w *fakeWatcher) WatchList(ctx context.Context) ([]string, error) {
	var roots []string
	for root := range w.watches {
		roots = append(roots, root)
	}
	return roots, nil
}

func (w *fakeWatcher) WatchProject(ctx context.Context, root string) (string, error) {
	w.projectCall = append(w.projectCall, root)
	if _, ok := w.watches[root]; !ok {
		w.watches[root] = "vireo"
	}
	return w.watches[root], nil
}

func (w *fakeWatcher) WatchDel(ctx context.Context, root string) error {
	w.delCalls = append(w.delCalls, root)
	delete(w.watches, root)
	return nil
}
