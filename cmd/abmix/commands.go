package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/satindergrewal/abmix/internal/audio"
	"github.com/satindergrewal/abmix/internal/config"
	"github.com/satindergrewal/abmix/internal/controller"
	"github.com/satindergrewal/abmix/internal/device"
	"github.com/spf13/cobra"
)

func paramEnricher() boa.ParamEnricher {
	return boa.ParamEnricherCombine(
		boa.ParamEnricherBool,
		boa.ParamEnricherName,
		boa.ParamEnricherShort,
	)
}

type RemoteParams struct {
	Session     string   `pos:"true" required:"true" help:"Session id on the remote mixer."`
	Stem        bool     `short:"s" optional:"true" help:"Session is a four-source stem session."`
	Transport   string   `short:"t" optional:"true" help:"Link to the mixer: websocket or webrtc (default from ABMIX_MIXER_TRANSPORT)."`
	URL         string   `short:"u" optional:"true" help:"Mixer base URL (default from ABMIX_MIXER_URL or ABMIX_OFFER_URL)."`
	Fallback    []string `short:"f" optional:"true" help:"Audio to mix locally if the mixer is unreachable (repeat for each source)."`
	Play        bool     `short:"p" optional:"true" help:"Start playback immediately."`
	Interactive bool     `short:"i" optional:"true" help:"Open the control console."`
}

type LocalParams struct {
	Sources     []string `pos:"true" required:"true" help:"original processed, or vocal-original vocal-processed instrumental-original instrumental-processed."`
	Renderer    string   `short:"r" optional:"true" help:"auto, realtime, block or headless (default from ABMIX_RENDERER)."`
	Capture     string   `short:"c" optional:"true" help:"With the headless renderer, write the output to this WAV file."`
	Play        bool     `short:"p" optional:"true" help:"Start playback immediately."`
	Interactive bool     `short:"i" optional:"true" help:"Open the control console."`
}

func remoteCmd() *cobra.Command {
	return boa.CmdT[RemoteParams]{
		Use:         "remote",
		Short:       "Stream a session from a remote mixer",
		ParamEnrich: paramEnricher(),
		RunFunc: func(p *RemoteParams, cmd *cobra.Command, args []string) {
			os.Exit(exitCode(runRemote(p)))
		},
	}.ToCobra()
}

func localCmd() *cobra.Command {
	return boa.CmdT[LocalParams]{
		Use:         "local",
		Short:       "Mix session audio locally",
		ParamEnrich: paramEnricher(),
		RunFunc: func(p *LocalParams, cmd *cobra.Command, args []string) {
			os.Exit(exitCode(runLocal(p)))
		},
	}.ToCobra()
}

func probeCmd() *cobra.Command {
	return boa.CmdT[boa.NoParams]{
		Use:   "probe",
		Short: "Report which audio output this machine supports",
		RunFunc: func(_ *boa.NoParams, cmd *cobra.Command, args []string) {
			fmt.Printf("low-latency output: %s\n", device.Probe())
		},
	}.ToCobra()
}

func exitCode(err error) int {
	if err != nil {
		fmt.Fprintf(os.Stderr, "abmix: %v\n", err)
		return 1
	}
	return 0
}

func mode(stem bool) audio.Mode {
	if stem {
		return audio.Stem
	}
	return audio.Standard
}

func runRemote(p *RemoteParams) error {
	cfg := config.Load()
	if p.Transport != "" {
		cfg.MixerTransport = p.Transport
	}
	if p.URL != "" {
		if cfg.MixerTransport == "webrtc" {
			cfg.OfferURL = p.URL
		} else {
			cfg.MixerURL = p.URL
		}
	}

	a, err := newApp(cfg, true, len(p.Fallback) > 0)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backend := controller.KindRemote
	if len(p.Fallback) > 0 {
		backend = controller.KindAuto
	}
	err = a.ctl.Begin(ctx, controller.Request{
		SessionID: p.Session,
		Mode:      mode(p.Stem),
		Backend:   backend,
		Sources:   p.Fallback,
	})
	if err != nil {
		return err
	}
	return a.run(ctx, p.Play, p.Interactive)
}

func runLocal(p *LocalParams) error {
	cfg := config.Load()
	if p.Renderer != "" {
		cfg.Renderer = p.Renderer
	}
	if p.Capture != "" {
		cfg.CapturePath = p.Capture
	}

	var m audio.Mode
	switch len(p.Sources) {
	case 2:
		m = audio.Standard
	case 4:
		m = audio.Stem
	default:
		return fmt.Errorf("need 2 or 4 sources, got %d", len(p.Sources))
	}

	a, err := newApp(cfg, false, true)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err = a.ctl.Begin(ctx, controller.Request{Mode: m, Backend: controller.KindLocal, Sources: p.Sources})
	if err != nil {
		return err
	}
	return a.run(ctx, p.Play || !p.Interactive, p.Interactive)
}
