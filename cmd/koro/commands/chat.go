package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/koromind/koromind/internal/brain"
	"github.com/koromind/koromind/internal/config"
	"github.com/koromind/koromind/internal/domain"
)

const replUser = "local"

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk to KoroMind from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat()
		},
	}
}

func runChat() error {
	// Quiet text logs on stderr so the conversation stays readable.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env file")
	}

	// The REPL talks to the Brain in-process; there is no network surface
	// to protect with an API key.
	_ = os.Setenv("KOROMIND_ALLOW_NO_AUTH", "true")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := buildCore(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer c.close()

	rl, err := readline.New("koro> ")
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	// Ctrl-C while a turn is running interrupts the engine, not the REPL.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		for range sigCh {
			if c.brain.Interrupt(replUser) {
				fmt.Println("\nInterrupted.")
			}
		}
	}()
	defer signal.Stop(sigCh)

	fmt.Println("KoroMind. Type a message, /help for commands, /exit to leave.")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := replCommand(ctx, c, rl, line); quit {
				return nil
			}
			continue
		}

		replTurn(ctx, c, rl, line)
	}
}

func replTurn(ctx context.Context, c *core, rl *readline.Instance, text string) {
	req := brain.TurnRequest{
		UserID:      replUser,
		ContentType: domain.ContentText,
		Text:        text,
		OnToolCall: func(toolName, detail string) {
			if detail != "" {
				fmt.Printf("[tool] %s: %s\n", toolName, detail)
			} else {
				fmt.Printf("[tool] %s\n", toolName)
			}
		},
		CanUseTool: replApproval(rl),
	}

	result, err := c.brain.ProcessTurn(ctx, req)
	if err != nil {
		fmt.Println("error:", replErrorMessage(err))
		return
	}
	fmt.Println(result.Text)
}

// replApproval asks for the decision on the same terminal. The main goroutine
// is blocked inside ProcessTurn while this runs, so the prompt has the tty to
// itself.
func replApproval(rl *readline.Instance) func(ctx context.Context, toolName string, toolInput map[string]any) (bool, error) {
	return func(ctx context.Context, toolName string, toolInput map[string]any) (bool, error) {
		rl.SetPrompt(fmt.Sprintf("allow %s? [y/N] ", toolName))
		defer rl.SetPrompt("koro> ")

		line, err := rl.Readline()
		if err != nil {
			return false, nil
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	}
}

func replCommand(ctx context.Context, c *core, rl *readline.Instance, line string) (quit bool) {
	fields := strings.Fields(line)
	cmd, args := fields[0], strings.TrimSpace(strings.TrimPrefix(line, fields[0]))

	switch cmd {
	case "/exit", "/quit":
		return true
	case "/help":
		fmt.Println(`/new [name]     start a new session
/sessions       list sessions
/switch <id>    switch session
/settings       show settings
/mode           toggle auto/approve mode
/watch          toggle tool-call notifications
/speed <v>      set voice speed
/exit           leave`)
	case "/new":
		if err := c.brain.StartNewSession(ctx, replUser, args); err != nil {
			fmt.Println("error:", replErrorMessage(err))
			return false
		}
		fmt.Println("New session selected. Your next message will start it.")
	case "/sessions":
		sessions, err := c.brain.ListSessions(ctx, replUser)
		if err != nil {
			fmt.Println("error:", replErrorMessage(err))
			return false
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions yet.")
			return false
		}
		for i, sess := range sessions {
			marker := ""
			if sess.IsCurrent {
				marker = " (current)"
			}
			name := sess.Name
			if name == "" {
				name = "-"
			}
			fmt.Printf("%d. %.8s %s%s\n", i+1, sess.ID, name, marker)
		}
	case "/switch":
		if args == "" {
			fmt.Println("usage: /switch <session-id>")
			return false
		}
		sess, err := c.brain.SwitchSession(ctx, replUser, args)
		if err != nil {
			fmt.Println("error:", replErrorMessage(err))
			return false
		}
		fmt.Printf("Switched to session %.8s\n", sess.ID)
	case "/settings":
		settings, err := c.brain.Settings(ctx, replUser)
		if err != nil {
			fmt.Println("error:", replErrorMessage(err))
			return false
		}
		fmt.Printf("mode=%s watch=%t audio=%t speed=%.1f stt=%s\n",
			settings.Mode, settings.WatchEnabled, settings.AudioEnabled,
			settings.VoiceSpeed, settings.STTLanguage)
	case "/mode":
		replToggleMode(ctx, c)
	case "/watch":
		replToggleWatch(ctx, c)
	case "/speed":
		speed, err := strconv.ParseFloat(args, 64)
		if err != nil {
			fmt.Println("usage: /speed <0.7-1.2>")
			return false
		}
		if _, err := c.brain.UpdateSettings(ctx, replUser, domain.SettingsUpdate{VoiceSpeed: &speed}); err != nil {
			fmt.Println("error:", replErrorMessage(err))
			return false
		}
		fmt.Printf("Voice speed set to %.1fx\n", speed)
	default:
		fmt.Println("Unknown command. Try /help.")
	}
	return false
}

func replToggleMode(ctx context.Context, c *core) {
	settings, err := c.brain.Settings(ctx, replUser)
	if err != nil {
		fmt.Println("error:", replErrorMessage(err))
		return
	}
	mode := domain.ModeAuto
	if settings.Mode == domain.ModeAuto {
		mode = domain.ModeApprove
	}
	if _, err := c.brain.UpdateSettings(ctx, replUser, domain.SettingsUpdate{Mode: &mode}); err != nil {
		fmt.Println("error:", replErrorMessage(err))
		return
	}
	fmt.Println("Mode:", mode)
}

func replToggleWatch(ctx context.Context, c *core) {
	settings, err := c.brain.Settings(ctx, replUser)
	if err != nil {
		fmt.Println("error:", replErrorMessage(err))
		return
	}
	watch := !settings.WatchEnabled
	if _, err := c.brain.UpdateSettings(ctx, replUser, domain.SettingsUpdate{WatchEnabled: &watch}); err != nil {
		fmt.Println("error:", replErrorMessage(err))
		return
	}
	if watch {
		fmt.Println("Watch: on")
	} else {
		fmt.Println("Watch: off")
	}
}

func replErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return err.Error()
	default:
		slog.Error("turn failed", "error", err)
		return "something went wrong, try again"
	}
}
