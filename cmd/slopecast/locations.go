package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/slopecast/slopecast-api/internal/data"
	"github.com/slopecast/slopecast-api/internal/domain/model"
)

func newLocationsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locations",
		Short: "Manage ski resort locations",
	}
	cmd.AddCommand(newLocationsListCmd(a), newLocationsImportCmd(a))
	return cmd
}

func newLocationsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list [id...]",
		Short: "List all locations, or only the given ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			infra, err := a.connect(ctx, infraNeeds{DB: true})
			if err != nil {
				return err
			}
			defer a.closeInfra(infra)

			locations, err := data.NewLocationRepo(infra.DB).List(ctx, cleanIDs(args))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), locations)
		},
	}
}

func newLocationsImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json|->",
		Short: "Create or replace locations from a JSON array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			locations, err := readLocations(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			infra, err := a.connect(ctx, infraNeeds{DB: true})
			if err != nil {
				return err
			}
			defer a.closeInfra(infra)

			repo := data.NewLocationRepo(infra.DB)
			for _, loc := range locations {
				if err := repo.Upsert(ctx, loc); err != nil {
					return fmt.Errorf("upsert location %q: %w", loc.ID, err)
				}
			}
			a.logger.InfoContext(ctx, "locations imported", "count", len(locations))
			return nil
		},
	}
}

// readLocations decodes a JSON array of locations from path, or stdin when path is "-".
func readLocations(stdin io.Reader, path string) ([]model.Location, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read locations: %w", err)
	}

	var locations []model.Location
	if err := json.Unmarshal(raw, &locations); err != nil {
		return nil, fmt.Errorf("decode locations: %w", err)
	}
	for i, loc := range locations {
		if loc.ID == "" {
			return nil, fmt.Errorf("location %d: %w", i, data.ErrLocationIDRequired)
		}
	}
	return locations, nil
}
