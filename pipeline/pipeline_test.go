package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/capsulabs/capsule-pipeline/errors"
	"github.com/capsulabs/capsule-pipeline/fanout"
	"github.com/capsulabs/capsule-pipeline/model"
	"github.com/capsulabs/capsule-pipeline/persistence"
	"github.com/capsulabs/capsule-pipeline/storage"
	"github.com/capsulabs/capsule-pipeline/subprocess"
)

// fakeStore is a minimal in-memory persistence.Store for orchestrator
// tests, mirroring the shape of the real PGStore without a database.
type fakeStore struct {
	mu       sync.Mutex
	capsules map[int64]*model.Capsule
}

func newFakeStore(c *model.Capsule) *fakeStore {
	return &fakeStore{capsules: map[int64]*model.Capsule{c.ID: c}}
}

func (f *fakeStore) GetCapsule(ctx context.Context, id int64) (*model.Capsule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.capsules[id]
	if !ok {
		return nil, errors.NewObjectNotFoundError("capsule", nil)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) SaveCapsule(ctx context.Context, c *model.Capsule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.capsules[c.ID] = &cp
	return nil
}

func (f *fakeStore) GetUser(ctx context.Context, id string) (*persistence.User, error) {
	return nil, errors.NewObjectNotFoundError("user", nil)
}

func (f *fakeStore) ListRunning(ctx context.Context) ([]*model.Capsule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var running []*model.Capsule
	for _, c := range f.capsules {
		if c.Produced == model.StatusRunning || c.Published == model.StatusRunning || c.VideoUploaded == model.StatusRunning {
			cp := *c
			running = append(running, &cp)
		}
	}
	return running, nil
}

// writeFakeTool writes an executable shell script at dir/tool.sh that
// reads and discards stdin, prints "100" to stdout (a single finished
// progress line), and runs body (additional shell statements that write
// whatever output files the test expects), then returns its path.
func writeFakeTool(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tool.sh")
	script := "#!/bin/sh\ncat >/dev/null\n" + body + "\necho 100\n"
	if err := writeExecutableScript(path, script); err != nil {
		t.Fatalf("failed to write fake tool: %v", err)
	}
	return path
}

func writeExecutableScript(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o755)
}

func newTestOrchestrator(t *testing.T, c *model.Capsule, toolScript string) (*Orchestrator, *fakeStore) {
	t.Helper()
	store, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	ps := newFakeStore(c)
	registry := fanout.NewRegistry()
	runner := subprocess.NewRunner(toolScript)
	tool := NewExternalTool(runner)
	dataPath := t.TempDir()
	return NewOrchestrator(store, ps, registry, tool, dataPath, false), ps
}
