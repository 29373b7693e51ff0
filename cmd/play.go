package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/qrave1/TypeRace/internal/application/constant"
	"github.com/qrave1/TypeRace/internal/client/api"
	"github.com/qrave1/TypeRace/internal/client/session"
	"github.com/qrave1/TypeRace/internal/client/transport"
)

var playFlags struct {
	server   string
	token    string
	name     string
	password string
	room     string
	create   string
	debug    bool
}

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Race from the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlay(cmd.Context())
	},
}

func init() {
	f := playCmd.Flags()
	f.StringVar(&playFlags.server, "server", "http://localhost:3000", "server address")
	f.StringVar(&playFlags.token, "token", "", "JWT, skips login")
	f.StringVar(&playFlags.name, "name", "", "user name for login")
	f.StringVar(&playFlags.password, "password", "", "password for login")
	f.StringVar(&playFlags.room, "room", "", "room id to join")
	f.StringVar(&playFlags.create, "create", "", "create a room with this name")
	f.BoolVar(&playFlags.debug, "debug", false, "verbose logs")

	playCmd.MarkFlagsMutuallyExclusive("room", "create")

	rootCmd.AddCommand(playCmd)
}

func runPlay(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	level := slog.LevelWarn
	if playFlags.debug {
		level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	apiClient := api.New(playFlags.server)

	token := playFlags.token
	if token == "" {
		if playFlags.name == "" || playFlags.password == "" {
			return fmt.Errorf("either --token or --name with --password is required")
		}

		var err error
		if token, err = apiClient.Login(ctx, playFlags.name, playFlags.password); err != nil {
			return err
		}
	}

	me, err := apiClient.Me(ctx, token)
	if err != nil {
		return err
	}

	wsURL, err := apiClient.WebsocketURL()
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	client := transport.New(wsURL, transport.Options{Header: header})

	sess := session.New(os.Stdout, client, clockwork.NewRealClock(), session.Options{
		UserID:     me.ID,
		CreateName: playFlags.create,
		JoinRoomID: playFlags.room,
	})
	defer sess.Close()

	sess.Bind(client)
	client.OnConnect(sess.OnConnect)

	fmt.Printf("Hi, %s! Best: %d wpm, wins %d/%d\n", me.Name, me.BestWPM, me.Wins, me.GamesPlayed)

	runErr := make(chan error, 1)
	go func() {
		runErr <- client.Run(ctx)
	}()

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			sess.HandleLine(scanner.Text())
		}

		if err := scanner.Err(); err != nil {
			slog.Error("read stdin", slog.Any(constant.Error, err))
		}

		cancel()
	}()

	select {
	case <-sess.Done():
		cancel()
	case <-ctx.Done():
	}

	if err := <-runErr; err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}
