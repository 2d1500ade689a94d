package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nadzzz/polyglot/internal/message"
	grpctransport "github.com/nadzzz/polyglot/internal/transport/grpc"
)

var (
	sayLanguage string
	sayOutput   string
	sayServer   string

	sayCmd = &cobra.Command{
		Use:   "say TEXT...",
		Short: "Route one text and write the synthesized WAV",
		Long: "Resolves the language of TEXT, synthesizes it with the matching voice\n" +
			"and writes a WAV file. With --server the text is routed by a running\n" +
			"polyglot daemon over gRPC instead of in-process.",
		Args: cobra.MinimumNArgs(1),
		RunE: runSay,
	}
)

func init() {
	sayCmd.Flags().StringVarP(&sayLanguage, "lang", "l", "", "language tag (ISO-639-1); detected when empty")
	sayCmd.Flags().StringVarP(&sayOutput, "output", "o", "out.wav", "WAV file to write")
	sayCmd.Flags().StringVar(&sayServer, "server", "", "gRPC address of a running daemon (e.g. localhost:50051)")
}

func runSay(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	start := time.Now()

	var (
		lang, voiceName string
		wav             []byte
		err             error
	)
	if sayServer != "" {
		lang, voiceName, wav, err = sayRemote(cmd.Context(), text)
	} else {
		lang, voiceName, wav, err = sayLocal(cmd.Context(), text)
	}
	if err != nil {
		return err
	}

	if err := os.WriteFile(sayOutput, wav, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", sayOutput, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s  %s (%s)\n",
		lang, voiceName, sayOutput, humanize.Bytes(uint64(len(wav))), time.Since(start).Round(time.Millisecond))
	return nil
}

func sayLocal(ctx context.Context, text string) (string, string, []byte, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", "", nil, err
	}
	r, cleanup, err := newRouter(cfg)
	if err != nil {
		return "", "", nil, err
	}
	defer cleanup()
	defer r.Close()

	unit := message.Unit{ID: uuid.NewString(), Text: text, Language: message.Known(sayLanguage)}
	out, err := r.Route(ctx, unit)
	if err != nil {
		return "", "", nil, err
	}
	if out == nil {
		return "", "", nil, errors.New("nothing to synthesize")
	}
	wav := message.PCMToWAV(out.Audio, out.SampleRate, out.Channels, out.SampleWidth)
	return out.Language, out.Voice, wav, nil
}

func sayRemote(ctx context.Context, text string) (string, string, []byte, error) {
	client, err := grpctransport.Dial(sayServer)
	if err != nil {
		return "", "", nil, err
	}
	defer client.Close()

	res, err := client.Route(ctx, &message.RouteRequest{Text: text, Language: message.Known(sayLanguage)})
	if err != nil {
		return "", "", nil, err
	}
	if res == nil {
		return "", "", nil, errors.New("nothing to synthesize")
	}
	wav, err := base64.StdEncoding.DecodeString(res.Audio)
	if err != nil {
		return "", "", nil, fmt.Errorf("decoding audio: %w", err)
	}
	return res.Language, res.Voice, wav, nil
}
