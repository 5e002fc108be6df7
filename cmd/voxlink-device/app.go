package main

import (
	"bufio"
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"voxlink/pkg/config"
	"voxlink/pkg/device"
	"voxlink/pkg/observability"
	"voxlink/pkg/protocol/codec"
	"voxlink/pkg/session"
	"voxlink/pkg/transport"
	"voxlink/pkg/transport/mem"
	"voxlink/pkg/transport/quic"
	"voxlink/pkg/transport/tcp"
)

// run is the main entry point after CLI parsing.
func run(opts Options) int {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	zap.L().Info("voxlink-device started",
		zap.String("app", cfg.AppName), zap.String("device", cfg.DeviceID))
	zap.L().Info("effective configuration", zap.Any("config", cfg))

	if len(cfg.Device.Friends) == 0 {
		zap.L().Error("no friends configured; nothing to do")
		return 1
	}

	tr, err := transportByKind(cfg.Device.Transport)
	if err != nil {
		zap.L().Error("transport init failed", zap.Error(err))
		return 1
	}
	wire := codec.NewRegistry().Get(cfg.Wire)
	if wire == nil {
		zap.L().Error("unknown wire codec", zap.String("wire", cfg.Wire))
		return 1
	}

	friends := make([]session.Friend, 0, len(cfg.Device.Friends))
	for _, f := range cfg.Device.Friends {
		friends = append(friends, session.Friend{
			Alias: f.Alias, Name: f.Name, DeviceID: f.DeviceID, LightIndex: f.LightIndex,
		})
	}

	// session and link reference each other; events only flow once both exist
	var sess *session.Session
	post := device.SinkFunc(func(ev session.Event) { sess.Post(ev) })
	audio := device.NewMockAudio(post)
	link := device.NewLink(device.LinkConfig{
		DeviceID:   cfg.DeviceID,
		DeviceName: cfg.DeviceName,
		Friends:    cfg.FriendIDs(),
		RelayAddr:  cfg.Device.RelayAddr,
		Transport:  tr,
		Wire:       wire,
		Dial: transport.DialOptions{
			BackoffInitial: time.Duration(cfg.Net.DialBackoffInitialMS) * time.Millisecond,
			BackoffMax:     time.Duration(cfg.Net.DialBackoffMaxMS) * time.Millisecond,
			BackoffJitter:  time.Duration(cfg.Net.DialBackoffJitterMS) * time.Millisecond,
		},
	}, post)
	sess = session.New(session.Config{
		DeviceID:           cfg.DeviceID,
		Friends:            friends,
		ConversationWindow: time.Duration(cfg.Device.ConversationWindowS) * time.Second,
		Audio:              audio,
		Lights:             device.LogLights{},
		Sender:             link,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go link.Run(ctx)
	go readButtons(ctx, stop, sess, friends)

	if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		zap.L().Error("session failed", zap.Error(err))
		return 1
	}
	zap.L().Info("voxlink-device stopped")
	return 0
}

// readButtons turns stdin lines into button events: a friend alias presses
// that friend's button, "r" the record button, "d" the dialog button and "q"
// quits.
func readButtons(ctx context.Context, stop func(), sess *session.Session, friends []session.Friend) {
	aliases := make(map[string]struct{}, len(friends))
	for _, f := range friends {
		aliases[f.Alias] = struct{}{}
	}

	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case line == "q":
			stop()
			return
		case line == "r":
			sess.Post(session.RecordPressed{})
		case line == "d":
			sess.Post(session.DialogPressed{})
		default:
			if _, ok := aliases[line]; ok {
				sess.Post(session.FriendPressed{Friend: line})
			} else {
				zap.L().Warn("unknown button", zap.String("input", line))
			}
		}
	}
}

func transportByKind(kind string) (transport.Transport, error) {
	switch kind {
	case "tcp":
		return tcp.New(), nil
	case "quic":
		return quic.New(), nil
	case "mem":
		return mem.Default, nil
	default:
		return nil, errors.New("unknown transport kind: " + kind)
	}
}
