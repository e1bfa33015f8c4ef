package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
)

var (
	personPhotos  []string
	personAliases []string
	personJSON    bool
)

var personCmd = &cobra.Command{
	Use:   "person",
	Short: "Manage people for face search",
	Long: `Registers people from reference photos. Face search and smart queries
that name a registered person or alias use the stored face vectors.`,
}

var personAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a person from one or more photos",
	Args:  cobra.ExactArgs(1),
	RunE:  runPersonAdd,
}

var personListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered people",
	RunE:  runPersonList,
}

var personRemoveCmd = &cobra.Command{
	Use:   "remove <person-id>",
	Short: "Remove a registered person",
	Args:  cobra.ExactArgs(1),
	RunE:  runPersonRemove,
}

func init() {
	personAddCmd.Flags().StringSliceVar(&personPhotos, "photo", nil, "reference photo (repeatable)")
	personAddCmd.Flags().StringSliceVar(&personAliases, "alias", nil, "alternative name (repeatable)")
	personListCmd.Flags().BoolVar(&personJSON, "json", false, "output as JSON")
	personCmd.AddCommand(personAddCmd, personListCmd, personRemoveCmd)
	rootCmd.AddCommand(personCmd)
}

func runPersonAdd(cmd *cobra.Command, args []string) error {
	if len(personPhotos) == 0 {
		return fmt.Errorf("%w: at least one --photo is required", domain.ErrInvalidInput)
	}
	photos := make([][]byte, 0, len(personPhotos))
	for _, path := range personPhotos {
		data, err := readExample(path)
		if err != nil {
			return err
		}
		photos = append(photos, data)
	}

	ctx := commandContext(cmd)
	if err := ensureServices(ctx); err != nil {
		return err
	}
	if personService == nil {
		return errors.New("person service not configured")
	}

	p, err := personService.Register(ctx, args[0], personAliases, photos)
	if err != nil {
		return fmt.Errorf("register failed: %w", err)
	}
	cmd.Printf("Registered %s (%s) from %d photo(s).\n", p.Name, p.ID, len(p.FaceVectors))
	return nil
}

func runPersonList(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	if err := ensureServices(ctx); err != nil {
		return err
	}
	if personService == nil {
		return errors.New("person service not configured")
	}

	persons, err := personService.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list persons: %w", err)
	}

	if personJSON {
		type personJSONOut struct {
			ID      string   `json:"id"`
			Name    string   `json:"name"`
			Aliases []string `json:"aliases,omitempty"`
			Photos  int      `json:"photos"`
		}
		out := make([]personJSONOut, len(persons))
		for i := range persons {
			out[i] = personJSONOut{persons[i].ID, persons[i].Name, persons[i].Aliases, len(persons[i].FaceVectors)}
		}
		return printJSON(cmd, out)
	}

	if len(persons) == 0 {
		cmd.Println("No people registered.")
		return nil
	}
	for i := range persons {
		p := &persons[i]
		cmd.Printf("  %s  %s", p.ID, p.Name)
		if len(p.Aliases) > 0 {
			cmd.Printf(" (%s)", strings.Join(p.Aliases, ", "))
		}
		cmd.Printf("  %d photo(s)\n", len(p.FaceVectors))
	}
	return nil
}

func runPersonRemove(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	if err := ensureServices(ctx); err != nil {
		return err
	}
	if personService == nil {
		return errors.New("person service not configured")
	}
	if err := personService.Remove(ctx, args[0]); err != nil {
		return fmt.Errorf("remove failed: %w", err)
	}
	cmd.Printf("Removed %s.\n", args[0])
	return nil
}
