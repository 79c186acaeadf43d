/*
Package main is the peerlink peer command line client.

It connects to a running relay, lists rooms, and hosts or joins a room,
negotiating a pion peer connection through the relay until interrupted.
*/
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"peerlink/internal/pkg/logx"
)

var (
	flagServer   string
	flagSTUN     string
	flagNickname string
	flagCodec    string
	flagTrickle  bool
	flagVerbose  bool
	flagTimeout  time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "peerlink",
	Short: "Discover rooms and connect to peers through a peerlink relay",
	Long: `peerlink talks to a peerlink signaling relay: it lists the rooms the relay
knows about, hosts a named room, or joins one by id or by name, and negotiates a
WebRTC session with the other side.

Configuration is read from flags, then PEERLINK_SERVER, STUN_SERVER,
PEERLINK_NICKNAME, PEERLINK_CODEC, PEERLINK_TRICKLE and PEERLINK_TIMEOUT.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "warn"
		if flagVerbose {
			level = "debug"
		}
		logx.InitGlobalLogger(logx.Options{Development: flagVerbose, Level: level, Out: os.Stderr})
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&flagServer, "server", "s", "", "relay WebSocket URL (default "+DefaultServer+")")
	flags.StringVar(&flagSTUN, "stun", "", "comma separated STUN servers, or none (default "+DefaultSTUN+")")
	flags.StringVarP(&flagNickname, "nickname", "n", "", "nickname announced to the relay")
	flags.StringVar(&flagCodec, "codec", "", "wire codec: json or msgpack")
	flags.BoolVar(&flagTrickle, "trickle", false, "send each candidate as soon as it is gathered")
	flags.DurationVar(&flagTimeout, "timeout", 0, "negotiation timeout (default 30s)")
	flags.BoolVarP(&flagVerbose, "verbose", "v", false, "log protocol and transport details to stderr")

	rootCmd.AddCommand(roomsCmd, hostCmd, joinCmd)
}

func currentOptions() options {
	return options{
		Server:   flagServer,
		STUN:     flagSTUN,
		Nickname: flagNickname,
		Codec:    flagCodec,
		Trickle:  flagTrickle,
		Timeout:  flagTimeout,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(err.Error())
		stop()
		os.Exit(1)
	}
}
