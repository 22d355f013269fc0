package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/afif25fradana/luna-voice-assistant-offline/internal/config"
)

func getAskCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <utterance>",
		Short: "Handle one utterance and print the response",
		Long: `Handle a single utterance and print the response to stdout.

Chat replies stream as they generate; command output prints when the command
finishes. Output is plain text with no terminal animation, safe to pipe.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAsk,
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	restoreLog := setupLogging(cfg)
	defer restoreLog()

	a := newApp(cfg, false)
	a.orch.Start()

	reqCtx, reqCancel := context.WithCancel(context.Background())
	defer reqCancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		reqCancel()
		<-sigCh
		os.Exit(130)
	}()

	gotFragments := false
	final, err := a.orch.Handle(reqCtx, strings.Join(args, " "), func(frag string) {
		gotFragments = true
		fmt.Print(frag)
	})
	if err != nil {
		a.shutdown("error")
		return err
	}
	if gotFragments {
		fmt.Println()
	} else if final != "" {
		fmt.Println(final)
	}

	a.shutdown("one-shot complete")
	return nil
}
