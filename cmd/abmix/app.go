package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/satindergrewal/abmix/internal/config"
	"github.com/satindergrewal/abmix/internal/controller"
	"github.com/satindergrewal/abmix/internal/device"
	"github.com/satindergrewal/abmix/internal/engine"
	"github.com/satindergrewal/abmix/internal/events"
	"github.com/satindergrewal/abmix/internal/fetch"
	"github.com/satindergrewal/abmix/internal/httpapi"
	"github.com/satindergrewal/abmix/internal/params"
	"github.com/satindergrewal/abmix/internal/transport"
)

// app owns every long-lived component of one invocation.
type app struct {
	cfg    config.Config
	ctl    *controller.Controller
	client *transport.Client
	eng    *engine.Engine
}

func initialParams(cfg config.Config) params.Set {
	p := params.Default()
	p.BlendRatio = cfg.BlendRatio
	p.VocalBlendRatio = cfg.BlendRatio
	p.InstrumentalBlendRatio = cfg.BlendRatio
	p.MasterGainDB = cfg.MasterGainDB
	return p.Clamp()
}

// newApp wires the controller. Remote and local backends are built only
// when asked for, since each claims the output device.
func newApp(cfg config.Config, remote, local bool) (*app, error) {
	a := &app{cfg: cfg}
	ccfg := controller.Config{
		Params: params.NewStore(initialParams(cfg)),
		Events: events.NewBroadcaster(),
		Fetch:  fetch.NewClient(cfg.FetchURL, cfg.FetchAPIKey, cfg.AudioDir),
	}

	if remote {
		sink, err := openStreamSink(cfg)
		if err != nil {
			return nil, err
		}
		a.client = transport.NewClient(sink, transport.Options{
			Dial:           dialer(cfg),
			ConnectTimeout: cfg.ConnectTimeout,
			Seek:           transport.SeekTiming{Settle: cfg.SeekSettle, Confirm: cfg.SeekConfirm, Resume: cfg.SeekResume},
			Lead:           cfg.ScheduleLead,
			OnError:        func(err error) { a.ctl.OnTransportError(err) },
			OnEvent:        func(ev transport.Event) { a.ctl.OnTransportEvent(ev) },
		})
		ccfg.Remote = a.client
	}
	if local {
		a.eng = engine.New(engine.Config{
			SampleRate:    cfg.SampleRate,
			Channels:      cfg.Channels,
			RealtimeBlock: cfg.RealtimeBlock,
			FallbackBlock: cfg.FallbackBlock,
			Renderer:      cfg.Renderer,
			CapturePath:   cfg.CapturePath,
			Params:        ccfg.Params.Snapshot(),
			OnEvent:       func(ev engine.Event) { a.ctl.OnEngineEvent(ev) },
		})
		ccfg.Local = a.eng
	}

	a.ctl = controller.New(ccfg)
	return a, nil
}

func dialer(cfg config.Config) transport.Dialer {
	if cfg.MixerTransport == "webrtc" {
		return transport.DialWebRTC(cfg.OfferURL, transport.WebRTCOptions{})
	}
	return transport.DialWebSocket(cfg.MixerURL)
}

// openStreamSink opens an output device for the remote stream, trying the
// low-latency device first.
func openStreamSink(cfg config.Config) (device.Sink, error) {
	dc := device.Config{
		SampleRate:  cfg.SampleRate,
		Channels:    cfg.Channels,
		BlockSize:   cfg.RealtimeBlock,
		CapturePath: cfg.CapturePath,
	}
	switch cfg.Renderer {
	case engine.RendererHeadless:
		return device.OpenHeadless(dc)
	case engine.RendererBlock:
		dc.BlockSize = cfg.FallbackBlock
		return device.OpenFallback(dc)
	}

	var errs []error
	if c := device.Probe(); c.Supported {
		s, err := device.OpenRealtime(dc)
		if err == nil {
			return s, nil
		}
		errs = append(errs, err)
	} else {
		log.Printf("abmix: low-latency output %s", c)
	}
	dc.BlockSize = cfg.FallbackBlock
	s, err := device.OpenFallback(dc)
	if err == nil {
		return s, nil
	}
	errs = append(errs, err)
	return nil, fmt.Errorf("no audio output: %w", errors.Join(errs...))
}

// serve runs the control API until ctx is done.
func (a *app) serve(ctx context.Context) {
	if a.cfg.Port == 0 {
		return
	}
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(a.cfg.Port),
		Handler:           httpapi.New(a.ctl),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	go func() {
		log.Printf("abmix: control API on http://localhost:%d/api/status", a.cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("abmix: control API: %v", err)
		}
	}()
}

func (a *app) close() {
	a.ctl.End()
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			log.Printf("abmix: close stream: %v", err)
		}
	}
	if a.eng != nil {
		if err := a.eng.Close(); err != nil {
			log.Printf("abmix: close engine: %v", err)
		}
	}
}

// run starts event delivery and the API, optionally starts playback, and
// then hands control to the console or waits for the session to end.
func (a *app) run(ctx context.Context, autoplay, interactive bool) error {
	go a.ctl.Run(ctx)
	a.serve(ctx)

	if autoplay {
		if err := a.ctl.Play(); err != nil {
			return err
		}
	}
	if interactive {
		return runConsole(ctx, a.ctl)
	}

	l := a.ctl.Events().Subscribe()
	defer a.ctl.Events().Unsubscribe(l)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-l.C:
			switch ev.Kind {
			case events.KindEnded:
				log.Printf("abmix: playback ended")
				return nil
			case events.KindError:
				log.Printf("abmix: %s", ev.Message)
				if a.ctl.ActiveBackend() == nil {
					return fmt.Errorf("session lost: %s", ev.Message)
				}
			}
		}
	}
}
