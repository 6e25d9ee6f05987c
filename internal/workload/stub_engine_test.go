package workload

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/gftdcojp/tier-workloads/internal/engine"
	"github.com/gftdcojp/tier-workloads/internal/types"
	"go.uber.org/zap"
)

type createCall struct {
	Key  string
	Pref types.Tier
}

type readCall struct {
	Key string
	Off int64
	Len int
}

// stubEngine accepts any tier and records every call.
type stubEngine struct {
	mu      sync.Mutex
	space   types.FreeSpace
	objects map[string]*stubObject

	creates []createCall
	cursors []createCall
	syncs   int
	reads   []readCall

	// syncErr fails every sync from the syncFailAt-th (1-based) on.
	syncErr    error
	syncFailAt int
	onRead     func(n int)
}

type stubObject struct {
	eng  *stubEngine
	key  string
	pref types.Tier
	data []byte
}

type stubCursor struct {
	obj *stubObject
}

func newStubEngine() *stubEngine {
	var space types.FreeSpace
	for i := range space {
		space[i] = types.TierSpace{Free: 1 << 50, Total: 1 << 50}
	}
	return &stubEngine{space: space, objects: make(map[string]*stubObject)}
}

var _ engine.Engine = (*stubEngine)(nil)

func (e *stubEngine) OpenOrCreateObjectWithPref(_ context.Context, key []byte, pref types.Tier) (engine.Object, types.ObjectInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	k := string(key)
	e.creates = append(e.creates, createCall{Key: k, Pref: pref})
	obj, ok := e.objects[k]
	if !ok {
		obj = &stubObject{eng: e, key: k}
		e.objects[k] = obj
	}
	obj.pref = pref
	return obj, obj.info(), nil
}

func (e *stubEngine) OpenObject(ctx context.Context, key []byte) (engine.Object, error) {
	obj, _, err := e.OpenObjectWithInfo(ctx, key)
	return obj, err
}

func (e *stubEngine) OpenObjectWithInfo(_ context.Context, key []byte) (engine.Object, types.ObjectInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	obj, ok := e.objects[string(key)]
	if !ok {
		return nil, types.ObjectInfo{}, fmt.Errorf("%w: %q", engine.ErrObjectNotFound, key)
	}
	return obj, obj.info(), nil
}

func (e *stubEngine) FreeSpaceTier(context.Context) (types.FreeSpace, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.space, nil
}

func (e *stubEngine) Sync(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.syncs++
	if e.syncErr != nil && e.syncs >= e.syncFailAt {
		return e.syncErr
	}
	return nil
}

func (e *stubEngine) keys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	keys := make([]string, len(e.creates))
	for i, c := range e.creates {
		keys[i] = c.Key
	}
	return keys
}

func (o *stubObject) info() types.ObjectInfo {
	return types.ObjectInfo{Key: o.key, Pref: o.pref, Size: int64(len(o.data))}
}

func (o *stubObject) CursorWithPref(pref types.Tier) engine.Cursor {
	o.eng.mu.Lock()
	o.eng.cursors = append(o.eng.cursors, createCall{Key: o.key, Pref: pref})
	o.eng.mu.Unlock()
	return &stubCursor{obj: o}
}

func (o *stubObject) ReadAt(_ context.Context, buf []byte, off int64) (int, error) {
	o.eng.mu.Lock()
	o.eng.reads = append(o.eng.reads, readCall{Key: o.key, Off: off, Len: len(buf)})
	n := len(o.eng.reads)
	hook := o.eng.onRead
	var copied int
	if off < int64(len(o.data)) {
		copied = copy(buf, o.data[off:])
	}
	o.eng.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return copied, nil
}

func (c *stubCursor) Write(p []byte) (int, error) {
	c.obj.eng.mu.Lock()
	defer c.obj.eng.mu.Unlock()
	c.obj.data = append(c.obj.data, p...)
	return len(p), nil
}

func newTestClient(eng engine.Engine, seed uint64) (*Client, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return NewClient(eng, seed, out, zap.NewNop()), out
}

func outputLines(out *bytes.Buffer) []string {
	return strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
}

func assertUniqueKeys(t *testing.T, keys []string) {
	t.Helper()
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			t.Fatalf("key %q created twice", k)
		}
		seen[k] = struct{}{}
	}
}
