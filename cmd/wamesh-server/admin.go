package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/wamesh-go/internal/server/config"
	"github.com/yndnr/wamesh-go/internal/storage"
	"github.com/yndnr/wamesh-go/internal/telemetry/logger"
)

// Offline commands open the stores directly, so the server must not be
// running against the same data directory.

func registryCommand() *cli.Command {
	return &cli.Command{
		Name:  "registry",
		Usage: "Inspect and edit the session registry offline",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List registered tenants",
				Action: registryList,
			},
			{
				Name:      "contacts",
				Usage:     "List known contacts of a tenant (badger contacts backend only)",
				ArgsUsage: "<client-id>",
				Action:    registryContacts,
			},
			{
				Name:      "purge",
				Usage:     "Delete a tenant's session blob, contacts and registry record",
				ArgsUsage: "<client-id>",
				Action:    registryPurge,
			},
		},
	}
}

func backupCommand() *cli.Command {
	return &cli.Command{
		Name:      "backup",
		Usage:     "Write a full Badger backup to a file",
		ArgsUsage: "<file>",
		Action:    backupData,
	}
}

// withStores loads config and opens the stores for an offline command.
func withStores(c *cli.Context, fn func(*config.ServerConfig, *stores) error) error {
	cfg, _, err := loadConfig(c)
	if err != nil {
		return err
	}
	st, err := openStores(c.Context, cfg, logger.NewNop(), nil)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	err = fn(cfg, st)
	return errors.Join(err, st.Close())
}

func registryList(c *cli.Context) error {
	return withStores(c, func(_ *config.ServerConfig, st *stores) error {
		records, err := st.registry.List(c.Context)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CLIENT ID\tNUMBER\tCREATED\tUPDATED")
		for _, r := range records {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ClientID, r.Number,
				r.CreatedAt.UTC().Format(time.RFC3339), r.UpdatedAt.UTC().Format(time.RFC3339))
		}
		return tw.Flush()
	})
}

func registryContacts(c *cli.Context) error {
	clientID := c.Args().First()
	if clientID == "" {
		return cli.Exit("client id is required", 2)
	}
	return withStores(c, func(cfg *config.ServerConfig, st *stores) error {
		ledger, ok := st.ledger.(*storage.ContactLedger)
		if !ok {
			return fmt.Errorf("listing contacts is not supported by the %s backend", cfg.Contacts.Backend)
		}
		entries, err := ledger.Contacts(c.Context, clientID)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CHAT ID\tFIRST SEEN\tLAST SEEN")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", e.PeerID,
				e.CreatedAt.UTC().Format(time.RFC3339), e.UpdatedAt.UTC().Format(time.RFC3339))
		}
		return tw.Flush()
	})
}

func registryPurge(c *cli.Context) error {
	clientID := c.Args().First()
	if clientID == "" {
		return cli.Exit("client id is required", 2)
	}
	return withStores(c, func(_ *config.ServerConfig, st *stores) error {
		ctx := c.Context
		err := errors.Join(
			st.blobs.Delete(ctx, clientID),
			st.ledger.DeleteClient(ctx, clientID),
			st.registry.Delete(ctx, clientID),
		)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "purged %s\n", clientID)
		return nil
	})
}

func backupData(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("backup file is required", 2)
	}
	return withStores(c, func(_ *config.ServerConfig, st *stores) error {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err != nil {
			return err
		}
		if err := st.engine.Backup(c.Context, f); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "backup written to %s\n", path)
		return nil
	})
}
