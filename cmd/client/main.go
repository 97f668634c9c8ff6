package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"merry-chat/config"
	"merry-chat/models"
	"merry-chat/session"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/cobra"
)

type options struct {
	cfg      config.ClientConfig
	username string
	password string
}

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	opts := &options{cfg: cfg}

	rootCmd := &cobra.Command{
		Use:   "merry-chat-client",
		Short: "Terminal client for a Merry Match chat room",
		Long: `Opens a chat room: prints its history, then relays what you type.
Type a line to send it, "/img <url>" to attach an uploaded image to the next
message and "/quit" to leave.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	flags := rootCmd.Flags()
	flags.StringVar(&opts.cfg.ServerURL, "server", cfg.ServerURL, "chat backend base URL")
	flags.StringVar(&opts.cfg.Token, "token", cfg.Token, "session token")
	flags.StringVar(&opts.cfg.RoomID, "room", cfg.RoomID, "chat room id")
	flags.StringVar(&opts.username, "username", "", "log in with this username when no token is given")
	flags.StringVar(&opts.password, "password", "", "password for --username")
	flags.BoolVar(&opts.cfg.Colours, "colours", cfg.Colours, "colourize output")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, render(opts.cfg.Colours, color.FgRed, "error: "+err.Error()))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options) error {
	if opts.cfg.RoomID == "" {
		return fmt.Errorf("--room is required")
	}
	if opts.cfg.Token == "" {
		if opts.username == "" {
			return fmt.Errorf("--token or --username is required")
		}
		token, err := session.Login(ctx, nil, opts.cfg.ServerURL, opts.username, opts.password)
		if err != nil {
			return err
		}
		opts.cfg.Token = token
	}

	p := &printer{colours: opts.cfg.Colours}
	s, err := session.New(session.Config{
		ServerURL: opts.cfg.ServerURL,
		Token:     opts.cfg.Token,
		RoomID:    opts.cfg.RoomID,
		Log:       logs.GetLoggerFromString(opts.cfg.LogLevel),
		OnMessage: p.message,
		OnError: func(e models.ErrorPayload) {
			p.line(color.FgRed, fmt.Sprintf("! %s: %s", e.Code, e.Message))
		},
	})
	if err != nil {
		return err
	}
	p.self = s.UserID()

	if err := s.Start(ctx); err != nil {
		return err
	}
	defer s.Close()

	if err := s.HistoryErr(); err != nil {
		p.line(color.FgYellow, "history unavailable: "+err.Error())
	}
	if other := s.OtherUser(); other != nil {
		p.other = other.Name
		p.line(color.FgMagenta, fmt.Sprintf("  ====== chatting with %s ======", other.Name))
	}
	for _, msg := range s.Messages() {
		p.message(msg)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.Done():
			return fmt.Errorf("connection closed by server")
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "/quit" {
				return nil
			}
			if url, found := strings.CutPrefix(strings.TrimSpace(line), "/img "); found {
				s.QueueAttachment(url)
				p.line(color.FgGray, "attached "+strings.TrimSpace(url))
				continue
			}
			s.SetInput(line)
			if err := s.SendMessage(); err != nil {
				return err
			}
		}
	}
}

type printer struct {
	colours bool
	self    string
	other   string
}

func (p *printer) message(msg models.Message) {
	who, c := p.other, color.FgCyan
	if msg.SenderID == p.self {
		who, c = "you", color.FgGreen
	}
	if who == "" {
		who = msg.SenderID
	}
	text := msg.Content
	for _, u := range msg.ImageURLs {
		text = strings.TrimSpace(text + " [image " + u + "]")
	}
	p.line(c, fmt.Sprintf("[%s] %s: %s", msg.Timestamp.Local().Format(time.Kitchen), who, text))
}

func (p *printer) line(c color.Color, text string) {
	fmt.Println(render(p.colours, c, text))
}

func render(colours bool, c color.Color, text string) string {
	if !colours {
		return text
	}
	return color.New(c).Render(text)
}
