package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dkeye/Huddle/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "huddle-peer",
	Short: "Headless Huddle participant: joins a session, meshes with every member and optionally records it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadPeer(peerViper)
		if err != nil {
			return err
		}
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
		return runPeer(cmd.Context(), cfg, shareScreen)
	},
	SilenceUsage: true,
}

var (
	peerViper   *viper.Viper
	shareScreen bool
)

// flagKeys maps CLI flags onto peer config keys.
var flagKeys = map[string]string{
	"server":       "server",
	"session":      "session",
	"uid":          "user_id",
	"name":         "name",
	"recorder":     "recorder",
	"duration":     "duration",
	"ice":          "ice_servers",
	"tone-hz":      "media.tone_hz",
	"video":        "media.video_file",
	"screen":       "media.screen_file",
	"fps":          "recording.fps",
	"width":        "recording.width",
	"height":       "recording.height",
	"jpeg-quality": "recording.jpeg_quality",
	"upload":       "recording.upload",
	"pipeline":     "recording.pipeline",
}

func registerFlags(fs *pflag.FlagSet) {
	fs.String("server", "", "signaling server base URL")
	fs.String("session", "", "session id to join")
	fs.String("uid", "", "user id; empty asks the server's identity endpoint")
	fs.String("name", "", "display name")
	fs.Bool("recorder", false, "join as the session creator and record")
	fs.Duration("duration", 0, "leave after this long; 0 waits for a signal")
	fs.StringSlice("ice", nil, "ICE server URLs")
	fs.Float64("tone-hz", 0, "frequency of the synthetic microphone tone")
	fs.String("video", "", "IVF (VP8) file used as camera")
	fs.String("screen", "", "IVF (VP8) file used as screen capture")
	fs.Int("fps", 0, "recording frame rate")
	fs.Int("width", 0, "recording width")
	fs.Int("height", 0, "recording height")
	fs.Int("jpeg-quality", 0, "recording JPEG quality")
	fs.Bool("upload", true, "upload finished recordings to the server")
	fs.String("pipeline", "", "post-upload pipeline: log or none")
	fs.BoolVar(&shareScreen, "share-screen", false, "share the screen source right after joining")
	fs.BoolP("verbose", "v", false, "debug logging")
}

// bindFlags lets explicitly set flags override file and env values.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	peerViper = config.NewPeerViper()
	registerFlags(rootCmd.PersistentFlags())
	if err := bindFlags(peerViper, rootCmd.PersistentFlags()); err != nil {
		log.Fatal().Err(err).Msg("flags")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
