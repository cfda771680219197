package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"

	"github.com/depgraph-io/depgraph/internal/storage"
)

const defaultPermission = "dependencies:read"

// openDatabase connects to the database named by --database-url, ignoring --fixture.
func openDatabase(c *cli.Context) (*storage.Connection, error) {
	url := strings.TrimSpace(c.String("database-url"))
	if url == "" {
		return nil, errNoDatabase
	}

	return storage.NewConnection(storage.NewConfig(url))
}

// issueKey generates a key for clientID and adds it to store. The returned APIKey holds
// the plaintext key; persistent stores keep only its hash.
func issueKey(
	ctx context.Context,
	store storage.APIKeyStore,
	clientID, name string,
	permissions []string,
	ttl time.Duration,
) (*storage.APIKey, error) {
	key, err := storage.GenerateAPIKey(clientID)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = clientID
	}

	apiKey := &storage.APIKey{
		ID:          uuid.NewString(),
		Key:         key,
		ClientID:    clientID,
		Name:        name,
		Permissions: permissions,
		CreatedAt:   time.Now().UTC(),
		Active:      true,
	}

	if ttl > 0 {
		expires := apiKey.CreatedAt.Add(ttl)
		apiKey.ExpiresAt = &expires
	}

	if err := store.Add(ctx, apiKey); err != nil {
		return nil, fmt.Errorf("failed to store API key: %w", err)
	}

	return apiKey, nil
}

func keygen(c *cli.Context) error {
	conn, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer conn.Close()

	store, err := storage.NewPersistentKeyStore(conn)
	if err != nil {
		return err
	}

	apiKey, err := issueKey(c.Context, store,
		c.String("client"),
		c.String("name"),
		c.StringSlice("permission"),
		c.Duration("ttl"),
	)
	if err != nil {
		return err
	}

	format, err := parseOutputFormat(c.String("output"))
	if err != nil {
		return err
	}

	if format == outputJSON {
		return writeJSON(c.App.Writer, apiKey)
	}

	t := newTable(c.App.Writer)
	t.AppendRows([]table.Row{
		{"ID", apiKey.ID},
		{"Client", apiKey.ClientID},
		{"Name", apiKey.Name},
		{"Permissions", joined(apiKey.Permissions)},
		{"Expires", expiry(apiKey.ExpiresAt)},
		{"Key", apiKey.Key},
	})
	t.Render()

	_, err = fmt.Fprintln(c.App.Writer, "The key is shown once; store it now.")

	return err
}

func expiry(t *time.Time) string {
	if t == nil {
		return "never"
	}

	return t.Format(time.RFC3339)
}

func init() {
	commands = append(commands, &cli.Command{
		Name:  "keygen",
		Usage: "Issue an API key for a client of the query API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "client",
				Usage:    "Client ID the key belongs to",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Human readable key name (default: the client ID)",
			},
			&cli.StringSliceFlag{
				Name:    "permission",
				Aliases: []string{"p"},
				Value:   cli.NewStringSlice(defaultPermission),
				Usage:   "Granted permission, repeatable",
			},
			&cli.DurationFlag{
				Name:  "ttl",
				Usage: "Key lifetime, zero for a key that never expires",
			},
		},
		Action: keygen,
	})
}
