// massctl is a small command line companion for a Music Assistant style
// server: log in and mint a long-lived token, probe the server, tail the
// event stream or fire a single command.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/lightforgemedia/go-musicassistant/pkg/api"
	"github.com/lightforgemedia/go-musicassistant/pkg/auth"
	"github.com/lightforgemedia/go-musicassistant/pkg/client"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:  "massctl",
		Usage: "interact with a Music Assistant style server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Usage:   "base server URL, e.g. http://mass.local:8095",
				Sources: cli.EnvVars("MASS_URL"),
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "long-lived auth token",
				Sources: cli.EnvVars("MASS_TOKEN"),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			loginCommand(),
			infoCommand(),
			listenCommand(),
			sendCommand(),
			playersCommand(),
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "massctl:", err)
		os.Exit(1)
	}
}

func newLogger(cmd *cli.Command) *slog.Logger {
	level := slog.LevelWarn
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// connect builds a client, connects and starts the listen loop on its own
// goroutine. Loop errors after a clean start are logged, not fatal.
func connect(ctx context.Context, cmd *cli.Command) (*client.Client, error) {
	logger := newLogger(cmd)
	c := client.New(cmd.String("url"),
		client.WithLogger(logger),
		client.WithAuthToken(cmd.String("token")),
	)
	if err := c.Connect(ctx); err != nil {
		c.Close()
		return nil, err
	}
	go func() {
		if err := c.StartListening(ctx); err != nil {
			logger.Error("listen loop failed", "error", err)
		}
	}()
	return c, nil
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "log in with username/password and print a long-lived token",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Required: true},
			&cli.StringFlag{Name: "password", Required: true},
			&cli.StringFlag{Name: "token-name", Value: "massctl"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			user, token, err := auth.LoginWithToken(ctx,
				cmd.String("url"),
				cmd.String("username"),
				cmd.String("password"),
				cmd.String("token-name"))
			if err != nil {
				return err
			}
			fmt.Printf("logged in as %s (admin: %v)\n", user.Username, user.IsAdmin)
			fmt.Println(token)
			return nil
		},
	}
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "print server info without authenticating",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			info, err := auth.GetServerInfo(ctx, cmd.String("url"))
			if err != nil {
				return err
			}
			return printJSON(info)
		},
	}
}

func listenCommand() *cli.Command {
	return &cli.Command{
		Name:  "listen",
		Usage: "print server events until interrupted",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, err := connect(ctx, cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			unsubscribe := c.Subscribe(func(ev *api.EventMessage) {
				line := string(ev.Event)
				if ev.ObjectID != "" {
					line += " " + ev.ObjectID
				}
				if len(ev.Data) > 0 {
					line += " " + string(ev.Data)
				}
				fmt.Println(line)
			})
			defer unsubscribe()

			<-ctx.Done()
			return nil
		},
	}
}

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "send a single command, args as key=value pairs",
		ArgsUsage: "<command> [key=value ...]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 1 {
				return fmt.Errorf("missing command name")
			}
			command := cmd.Args().First()
			args := make(map[string]any)
			for _, pair := range cmd.Args().Tail() {
				key, value, found := strings.Cut(pair, "=")
				if !found {
					return fmt.Errorf("argument %q is not key=value", pair)
				}
				args[key] = parseValue(value)
			}
			if len(args) == 0 {
				args = nil
			}

			c, err := connect(ctx, cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			result, err := c.SendCommand(ctx, command, args)
			if err != nil {
				return err
			}
			if len(result) == 0 {
				fmt.Println("ok")
				return nil
			}
			return printRaw(result)
		},
	}
}

func playersCommand() *cli.Command {
	return &cli.Command{
		Name:  "players",
		Usage: "list all players",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, err := connect(ctx, cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Players.FetchState(ctx); err != nil {
				return err
			}
			for _, p := range c.Players.All() {
				fmt.Printf("%-36s %-24s %-10s available=%v powered=%v\n",
					p.PlayerID, p.Name, p.State, p.Available, p.Powered)
			}
			return nil
		},
	}
}

// parseValue keeps command args typed: JSON literals pass through as
// their JSON type, anything else is a plain string.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func printRaw(raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	return printJSON(v)
}
