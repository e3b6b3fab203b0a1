package session

import (
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/gpauloski/libp2p-playground/internal/engine"
	"github.com/gpauloski/libp2p-playground/internal/perf"
)

// fakeEngine 脚本化引擎：测试侧注入事件，记录所有命令调用
type fakeEngine struct {
	local  peer.ID
	events chan engine.Event

	mu       sync.Mutex
	listens  []engine.TransportKind
	dials    []ma.Multiaddr
	reserves []ma.Multiaddr
	external []ma.Multiaddr
	runs     []perf.RunParams
	runPeers []peer.ID
}

var _ engine.Engine = (*fakeEngine)(nil)

func newFakeEngine(local peer.ID) *fakeEngine {
	return &fakeEngine{
		local:  local,
		events: make(chan engine.Event, 16),
	}
}

// feed 注入一个事件
func (f *fakeEngine) feed(ev engine.Event) {
	f.events <- ev
}

func (f *fakeEngine) LocalPeer() peer.ID              { return f.local }
func (f *fakeEngine) Events() <-chan engine.Event     { return f.events }
func (f *fakeEngine) Close() error                    { return nil }

func (f *fakeEngine) Listen(kind engine.TransportKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listens = append(f.listens, kind)
	return nil
}

func (f *fakeEngine) Dial(addr ma.Multiaddr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials = append(f.dials, addr)
	return nil
}

func (f *fakeEngine) Reserve(relay ma.Multiaddr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserves = append(f.reserves, relay)
	return nil
}

func (f *fakeEngine) AddExternalAddress(addr ma.Multiaddr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.external = append(f.external, addr)
}

func (f *fakeEngine) StartRun(p peer.ID, params perf.RunParams) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runPeers = append(f.runPeers, p)
	f.runs = append(f.runs, params)
}

func (f *fakeEngine) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dials)
}

func (f *fakeEngine) reserveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reserves)
}

func (f *fakeEngine) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

func (f *fakeEngine) externalCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.external)
}

func (f *fakeEngine) dialAt(i int) ma.Multiaddr {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials[i]
}

// waitFor 轮询直到条件满足或超时
func waitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}
