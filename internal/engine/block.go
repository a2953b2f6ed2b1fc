package engine

import (
	"sync"

	"github.com/satindergrewal/abmix/internal/audio"
	"github.com/satindergrewal/abmix/internal/params"
)

// blockRenderer serves large blocks from a lower-priority callback. Control
// calls take the same lock as the render step, so a change lands on the
// next block boundary.
type blockRenderer struct {
	mu      sync.Mutex
	mix     *mixer
	current params.Set
}

func newBlockRenderer(channels, blockSize int, initial params.Set, emit func(Event)) *blockRenderer {
	return &blockRenderer{
		mix:     newMixer(channels, blockSize, emit),
		current: initial,
	}
}

func (r *blockRenderer) Render(out [][]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mix.render(out, r.current)
}

func (r *blockRenderer) do(c command) {
	r.mu.Lock()
	r.mix.apply(c)
	r.mu.Unlock()
}

func (r *blockRenderer) load(set *audio.Set) { r.do(command{kind: cmdLoad, set: set}) }
func (r *blockRenderer) play()               { r.do(command{kind: cmdPlay}) }
func (r *blockRenderer) pause()              { r.do(command{kind: cmdPause}) }
func (r *blockRenderer) stop()               { r.do(command{kind: cmdStop}) }
func (r *blockRenderer) seek(frames int)     { r.do(command{kind: cmdSeek, frames: frames}) }

func (r *blockRenderer) setParams(p params.Set) {
	r.mu.Lock()
	r.current = p
	r.mu.Unlock()
}

func (r *blockRenderer) status() renderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := renderStatus{
		loaded:  r.mix.set != nil,
		playing: r.mix.playing,
		cursor:  r.mix.cursor,
		total:   r.mix.total(),
	}
	if r.mix.set != nil {
		st.rate = r.mix.set.SampleRate
	}
	return st
}
