package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"peerlink/internal/negotiation"
	"peerlink/internal/pkg/randx"
	"peerlink/internal/rtcpeer"
	"peerlink/internal/signalclient"
)

var roomsCmd = &cobra.Command{
	Use:     "rooms",
	Aliases: []string{"ls"},
	Short:   "List the rooms the relay knows about",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := startSession(cmd.Context(), currentOptions())
		if err != nil {
			return err
		}
		defer s.close()

		fmt.Println(roomsTable(s.engine.Rooms()))
		return nil
	},
}

var hostCmd = &cobra.Command{
	Use:   "host <room-name>",
	Short: "Host a room and wait for a peer to join",
	Long: `Host a named room on the relay. Once a peer joins, an offer is sent and the
session stays open until interrupted.

Examples:
  peerlink host party
  peerlink host party --server wss://relay.example.com/ws --timeout 2m`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := startSession(ctx, currentOptions())
		if err != nil {
			return err
		}
		defer s.close()

		roomID, err := s.engine.Host(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(hostedBox(args[0], roomID))

		return s.connectAndHold(ctx, "Waiting for a peer")
	},
}

var joinCmd = &cobra.Command{
	Use:   "join <room-id|room-name>",
	Short: "Join a room by id or by name",
	Long: `Join a room on the relay. Arguments shaped like a room id (four dash separated
twelve digit numbers) are joined directly; anything else is resolved by name first.

Examples:
  peerlink join 004187352211-918273645500-112233445566-778899001122
  peerlink join party`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := startSession(ctx, currentOptions())
		if err != nil {
			return err
		}
		defer s.close()

		roomID := args[0]
		if randx.IsValidID(roomID) {
			err = s.engine.Join(ctx, roomID)
		} else {
			roomID, err = s.engine.JoinByName(ctx, args[0])
		}
		if errors.Is(err, negotiation.ErrRoomNotFound) {
			return fmt.Errorf("no room matches %q", args[0])
		}
		if err != nil {
			return err
		}
		fmt.Println(TitleStyle.Render("Joined room " + roomID))

		return s.connectAndHold(ctx, "Negotiating with the host")
	},
}

// session is one relay connection driven by a negotiation engine.
type session struct {
	sig    *signalclient.Client
	engine *negotiation.Engine
	runErr chan error
}

func startSession(ctx context.Context, opts options) (*session, error) {
	cfg, err := loadConfig(opts, os.Getenv)
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	sig, err := signalclient.Dial(dialCtx, cfg.Server, cfg.Codec)
	if err != nil {
		return nil, err
	}

	engine, err := negotiation.New(sig, negotiation.Options{
		Nickname:           cfg.Nickname,
		NewTransport:       rtcpeer.NewFactory(rtcpeer.Config{STUNServers: cfg.STUNServers}),
		Trickle:            cfg.Trickle,
		NegotiationTimeout: cfg.Timeout,
	})
	if err != nil {
		sig.Close()
		return nil, err
	}

	s := &session{sig: sig, engine: engine, runErr: make(chan error, 1)}
	go func() { s.runErr <- engine.Run(ctx) }()

	select {
	case <-engine.Ready():
		return s, nil
	case err := <-s.runErr:
		sig.Close()
		return nil, fmt.Errorf("relay session ended: %w", err)
	case <-dialCtx.Done():
		s.close()
		return nil, fmt.Errorf("relay did not answer: %w", dialCtx.Err())
	}
}

// connectAndHold waits for the peer connection, then keeps it open until
// the context ends or the attempt fails.
func (s *session) connectAndHold(ctx context.Context, waiting string) error {
	stop := startSpinner(waiting)
	err := s.engine.WaitConnected(ctx)
	stop()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	fmt.Println(SuccessStyle.Render("Connected. Press Ctrl+C to leave."))

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	seen := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-s.engine.Errors():
			return err
		case err := <-s.runErr:
			return err
		case <-ticker.C:
			for _, t := range s.engine.RemoteTracks() {
				if !seen[t.StreamID()] {
					seen[t.StreamID()] = true
					fmt.Println(MutedStyle.Render(fmt.Sprintf("Receiving %s stream %s", t.Kind(), t.StreamID())))
				}
			}
		}
	}
}

func (s *session) close() {
	s.engine.Close()
	s.sig.Close()
}
