package engine

import (
	"log"
	"sync/atomic"

	"github.com/satindergrewal/abmix/internal/audio"
	"github.com/satindergrewal/abmix/internal/params"
)

// commandQueue is deep enough for a burst of UI commands between two
// render blocks.
const commandQueue = 64

// realtimeRenderer runs on the device callback. The control side never
// touches mixer state: parameters arrive through a single-slot mailbox
// where the newest snapshot replaces any unread one, and transport
// commands through a queue drained at the start of every block.
type realtimeRenderer struct {
	mix     *mixer
	current params.Set

	mailbox chan params.Set
	cmds    chan command

	cursor  atomic.Int64
	total   atomic.Int64
	rate    atomic.Int64
	playing atomic.Bool
	loaded  atomic.Bool
}

func newRealtimeRenderer(channels, blockSize int, initial params.Set, emit func(Event)) *realtimeRenderer {
	return &realtimeRenderer{
		mix:     newMixer(channels, blockSize, emit),
		current: initial,
		mailbox: make(chan params.Set, 1),
		cmds:    make(chan command, commandQueue),
	}
}

func (r *realtimeRenderer) Render(out [][]float64) {
	for drained := false; !drained; {
		select {
		case c := <-r.cmds:
			r.mix.apply(c)
		default:
			drained = true
		}
	}
	select {
	case p := <-r.mailbox:
		r.current = p
	default:
	}

	r.mix.render(out, r.current)

	r.cursor.Store(int64(r.mix.cursor))
	r.playing.Store(r.mix.playing)
}

func (r *realtimeRenderer) send(c command) {
	select {
	case r.cmds <- c:
	default:
		log.Printf("engine: command queue full, dropping %s", c.kind)
	}
}

func (r *realtimeRenderer) load(set *audio.Set) {
	r.total.Store(int64(set.Frames))
	r.rate.Store(int64(set.SampleRate))
	r.cursor.Store(0)
	r.playing.Store(false)
	r.loaded.Store(true)
	r.send(command{kind: cmdLoad, set: set})
}

func (r *realtimeRenderer) play() {
	r.playing.Store(true)
	r.send(command{kind: cmdPlay})
}

func (r *realtimeRenderer) pause() {
	r.playing.Store(false)
	r.send(command{kind: cmdPause})
}

func (r *realtimeRenderer) stop() {
	r.playing.Store(false)
	r.cursor.Store(0)
	r.send(command{kind: cmdStop})
}

func (r *realtimeRenderer) seek(frames int) {
	frames = min(max(frames, 0), int(r.total.Load()))
	r.cursor.Store(int64(frames))
	r.send(command{kind: cmdSeek, frames: frames})
}

// setParams posts p, replacing any snapshot the audio side has not read yet.
func (r *realtimeRenderer) setParams(p params.Set) {
	for {
		select {
		case r.mailbox <- p:
			return
		default:
		}
		select {
		case <-r.mailbox:
		default:
		}
	}
}

func (r *realtimeRenderer) status() renderStatus {
	return renderStatus{
		loaded:  r.loaded.Load(),
		playing: r.playing.Load(),
		cursor:  int(r.cursor.Load()),
		total:   int(r.total.Load()),
		rate:    int(r.rate.Load()),
	}
}
