package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/satindergrewal/abmix/internal/controller"
	"github.com/satindergrewal/abmix/internal/events"
	"github.com/satindergrewal/abmix/internal/params"
)

// commander is the part of the controller the console drives.
type commander interface {
	Play() error
	Pause() error
	Stop() error
	Seek(p float64) error
	UpdateParams(p params.Patch) (params.Set, error)
	Status() controller.Status
	Params() *params.Store
}

var errQuit = errors.New("quit")

const consoleHelp = `commands:
  play | pause | stop
  seek <0..1>
  blend <0..1>          main blend (also sets both stem ratios)
  vblend | iblend <0..1> stem blend ratios
  gain | vgain | igain <dB>
  mute | unmute vocal|instrumental
  limiter on|off
  status | help | quit`

func runConsole(ctx context.Context, ctl *controller.Controller) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt: "abmix> ",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("play"),
			readline.PcItem("pause"),
			readline.PcItem("stop"),
			readline.PcItem("seek"),
			readline.PcItem("blend"),
			readline.PcItem("vblend"),
			readline.PcItem("iblend"),
			readline.PcItem("gain"),
			readline.PcItem("vgain"),
			readline.PcItem("igain"),
			readline.PcItem("mute", readline.PcItem("vocal"), readline.PcItem("instrumental")),
			readline.PcItem("unmute", readline.PcItem("vocal"), readline.PcItem("instrumental")),
			readline.PcItem("limiter", readline.PcItem("on"), readline.PcItem("off")),
			readline.PcItem("status"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return fmt.Errorf("console: %w", err)
	}
	closeRL := sync.OnceFunc(func() { rl.Close() })
	defer closeRL()

	l := ctl.Events().Subscribe()
	defer ctl.Events().Unsubscribe(l)
	go func() {
		for {
			select {
			case <-ctx.Done():
				closeRL()
				return
			case <-l.Done():
				return
			case ev := <-l.C:
				switch ev.Kind {
				case events.KindEnded:
					fmt.Fprintln(rl.Stdout(), "playback ended")
				case events.KindError:
					fmt.Fprintf(rl.Stdout(), "error: %s\n", ev.Message)
				}
			}
		}
	}()

	fmt.Println(consoleHelp)
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return ctx.Err()
		}
		out, err := execute(ctl, line)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		if out != "" {
			fmt.Println(out)
		}
	}
}

// execute runs one console line and returns what to print.
func execute(ctl commander, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "play":
		return "", ctl.Play()
	case "pause":
		return "", ctl.Pause()
	case "stop":
		return "", ctl.Stop()
	case "seek":
		v, err := number(args)
		if err != nil {
			return "", err
		}
		return "", ctl.Seek(v)
	case "blend", "vblend", "iblend", "gain", "vgain", "igain":
		v, err := number(args)
		if err != nil {
			return "", err
		}
		var p params.Patch
		switch cmd {
		case "blend":
			p.BlendRatio = &v
		case "vblend":
			p.VocalBlendRatio = &v
		case "iblend":
			p.InstrumentalBlendRatio = &v
		case "gain":
			p.MasterGainDB = &v
		case "vgain":
			p.VocalGainDB = &v
		case "igain":
			p.InstrumentalGainDB = &v
		}
		return update(ctl, p)
	case "mute", "unmute":
		if len(args) != 1 {
			return "", fmt.Errorf("usage: %s vocal|instrumental", cmd)
		}
		muted := cmd == "mute"
		var p params.Patch
		switch strings.ToLower(args[0]) {
		case "vocal", "vocals":
			p.VocalMuted = &muted
		case "instrumental", "inst":
			p.InstrumentalMuted = &muted
		default:
			return "", fmt.Errorf("unknown stem %q", args[0])
		}
		return update(ctl, p)
	case "limiter":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return "", errors.New("usage: limiter on|off")
		}
		on := args[0] == "on"
		return update(ctl, params.Patch{LimiterEnabled: &on})
	case "status":
		return formatStatus(ctl.Status(), ctl.Params().Snapshot()), nil
	case "help", "?":
		return consoleHelp, nil
	case "quit", "exit", "q":
		return "", errQuit
	}
	return "", fmt.Errorf("unknown command %q (try help)", cmd)
}

func number(args []string) (float64, error) {
	if len(args) != 1 {
		return 0, errors.New("expected one number")
	}
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", args[0])
	}
	return v, nil
}

// update stores p even with nothing playing, so the next session picks it up.
func update(ctl commander, p params.Patch) (string, error) {
	s, err := ctl.UpdateParams(p)
	if err != nil && !errors.Is(err, controller.ErrNoActiveBackend) {
		return "", err
	}
	return formatParams(s), nil
}

func formatParams(s params.Set) string {
	return fmt.Sprintf("blend %.2f  vocal %.2f/%+.1fdB%s  inst %.2f/%+.1fdB%s  master %+.1fdB  limiter %s",
		s.BlendRatio,
		s.VocalBlendRatio, s.VocalGainDB, mutedTag(s.VocalMuted),
		s.InstrumentalBlendRatio, s.InstrumentalGainDB, mutedTag(s.InstrumentalMuted),
		s.MasterGainDB, onOff(s.LimiterEnabled))
}

func formatStatus(st controller.Status, s params.Set) string {
	if st.Backend == "" {
		return "no session\n" + formatParams(s)
	}
	state := "paused"
	if st.Playing {
		state = "playing"
	}
	if st.Seeking {
		state += " (seeking)"
	}
	return fmt.Sprintf("%s %s session %s: %s at %.1f%% of %s\n%s",
		st.Backend, st.Mode, st.SessionID, state, st.Position*100, st.Duration, formatParams(s))
}

func mutedTag(m bool) string {
	if m {
		return " muted"
	}
	return ""
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
