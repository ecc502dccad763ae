package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var server string
	var raw bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream the owner's job and story block events from a running api-server",
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ctx.owner()
			if err != nil {
				return err
			}
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			tok, _, err := a.Tokens.Sign(owner)
			if err != nil {
				return err
			}
			endpoint, err := wsURL(server, tok)
			if err != nil {
				return err
			}

			for {
				err := streamEvents(cmd.Context(), endpoint, cmd.OutOrStdout(), !raw)
				if cmd.Context().Err() != nil {
					return nil
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "disconnected: %v\n", err)
				select {
				case <-cmd.Context().Done():
					return nil
				case <-time.After(time.Second):
				}
			}
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "api-server base URL")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print events as received instead of indented")
	return cmd
}

func wsURL(server, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid server url %q", server)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

func streamEvents(ctx context.Context, endpoint string, out io.Writer, pretty bool) error {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer ws.Close()

	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		if !pretty {
			fmt.Fprintln(out, string(msg))
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(msg, &obj); err != nil {
			fmt.Fprintln(out, string(msg))
			continue
		}
		b, _ := json.MarshalIndent(obj, "", "  ")
		fmt.Fprintln(out, string(b))
	}
}
