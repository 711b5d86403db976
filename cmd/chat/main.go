// Command chat is a terminal chatbot over the conversation service.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/jonieats/assistant/internal/app"
	"github.com/jonieats/assistant/internal/config"
	"github.com/jonieats/assistant/internal/logging"
	"github.com/jonieats/assistant/internal/model/profile"
	"github.com/jonieats/assistant/internal/service/chat"
)

func main() {
	profileID := flag.String("profile", profile.Minimal, "assistant profile: minimal, cafe or voice")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Debugf("no .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	logging.Setup(cfg.Log)

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize services: %v", err)
	}

	session, err := a.Chat.CreateSession(ctx, *profileID)
	if err != nil {
		log.Fatalf("failed to start session: %v", err)
	}

	if p, err := a.Chat.Profile(ctx, session.ID); err == nil && p.Greeting != "" {
		fmt.Printf("Bot: %s\n", p.Greeting)
	}
	run(ctx, a.Chat, session.ID, os.Stdin, os.Stdout)
}

// run reads user lines until EOF or a quit command.
func run(ctx context.Context, chatSvc *chat.Service, sessionID string, in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Exiting.")
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch strings.ToLower(line) {
		case "quit", "exit", "q":
			fmt.Fprintln(out, "Goodbye!")
			return
		}

		result, err := chatSvc.Reply(ctx, sessionID, line)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			if ctx.Err() != nil {
				return
			}
			continue
		}
		fmt.Fprintf(out, "Bot: %s\n", result.Reply)
	}
}

