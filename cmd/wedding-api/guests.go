package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pmwedding/invitation/internal/database"
	"github.com/pmwedding/invitation/internal/guests"
)

func newGuestsCommand() *cobra.Command {
	guestsCmd := &cobra.Command{
		Use:   "guests",
		Short: "Manage invited guests and their invite links",
	}

	var name string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register a guest and print the invite link",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDirectory(func(directory *guests.Directory, baseURL string) error {
				guest, err := directory.Create(cmd.Context(), name)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", guest.ID, guest.Name, guests.InviteURL(baseURL, guest))
				return err
			})
		},
	}
	addCmd.Flags().StringVar(&name, "name", "", "Guest display name")
	if err := addCmd.MarkFlagRequired("name"); err != nil {
		panic(err)
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print every guest with the invite link",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDirectory(func(directory *guests.Directory, baseURL string) error {
				listed, err := directory.List(cmd.Context())
				if err != nil {
					return err
				}
				return writeGuestTable(cmd.OutOrStdout(), listed, baseURL)
			})
		},
	}

	guestsCmd.AddCommand(addCmd, listCmd)
	return guestsCmd
}

func withDirectory(run func(directory *guests.Directory, baseURL string) error) error {
	appConfig, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(database.Options{
		Driver: appConfig.DatabaseDriver,
		Path:   appConfig.DatabasePath,
		DSN:    appConfig.DatabaseDSN,
		Logger: logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel)),
	})
	if err != nil {
		return err
	}
	defer database.Close(db) //nolint:errcheck

	directory, err := guests.NewDirectory(guests.DirectoryConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	return run(directory, appConfig.SiteBaseURL)
}

func writeGuestTable(out io.Writer, listed []guests.Guest, baseURL string) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if _, err := fmt.Fprintln(writer, strings.Join([]string{"ID", "NAME", "INVITE"}, "\t")); err != nil {
		return err
	}
	for _, guest := range listed {
		if _, err := fmt.Fprintf(writer, "%d\t%s\t%s\n", guest.ID, guest.Name, guests.InviteURL(baseURL, guest)); err != nil {
			return err
		}
	}
	return writer.Flush()
}
