package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/ogm/internal/cache"
	"github.com/rohankatakam/ogm/internal/cypher"
	"github.com/rohankatakam/ogm/internal/mapping"
	"github.com/rohankatakam/ogm/internal/sample"
	"github.com/rohankatakam/ogm/internal/schema"
	"github.com/rohankatakam/ogm/internal/session"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Save a small sample graph",
	Long: `Builds a person with a pet, a friend and a movie rating, then saves it.

With --dry-run the statement is only compiled and printed. Otherwise it is
executed, the person's age is changed and saved again to show that only the
changed property is written, and with --cleanup everything is deleted.`,
	RunE: runDemo,
}

var (
	dryRun  bool
	cleanup bool
	depth   int
)

func init() {
	demoCmd.Flags().BoolVar(&dryRun, "dry-run", false, "compile and print the statement without connecting")
	demoCmd.Flags().BoolVar(&cleanup, "cleanup", false, "delete the sample graph afterwards")
	demoCmd.Flags().IntVar(&depth, "depth", 0, "save depth (default: session.depth)")
}

func demoGraph() (*sample.Person, []any) {
	nick := "Al"
	alice := &sample.Person{Name: "Alice", Age: 33, Nickname: &nick, Roles: []string{"Director"}}
	bob := &sample.Person{Name: "Bob", Age: 41}
	rex := &sample.Pet{Name: "Rex", Species: "dog", Owner: alice}
	matrix := &sample.Movie{Title: "The Matrix", Released: 1999}
	rating := &sample.Rating{Person: alice, Movie: matrix, Stars: 5, Comment: "again"}

	alice.Friends = []*sample.Person{bob}
	alice.Pets = []*sample.Pet{rex}
	alice.Ratings = []*sample.Rating{rating}
	return alice, []any{rating, rex, bob, matrix, alice}
}

func runDemo(cmd *cobra.Command, args []string) error {
	d := cfg.Session.Depth
	if cmd.Flags().Changed("depth") {
		d = depth
	}
	alice, all := demoGraph()
	if dryRun {
		return printPlan(cmd.OutOrStdout(), alice, d)
	}

	ctx := cmd.Context()
	client, err := connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close(ctx)
	defer client.Timeouts().LogSummary()

	mode, err := schema.ParseMode(cfg.Schema.AutoIndex)
	if err != nil {
		return err
	}
	if mode != schema.ModeNone {
		defs, err := schemaDefinitions()
		if err != nil {
			return err
		}
		if _, err := schema.NewManager(client).Apply(ctx, mode, defs); err != nil {
			return err
		}
	}

	store, err := cache.NewStore(ctx, cfg.CacheOptions(), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	s := session.New(sample.Registry(), client, store,
		session.WithLogger(logger),
		session.WithDepth(cfg.Session.Depth),
		session.WithKeyPrefix(cfg.Session.KeyPrefix))

	out := cmd.OutOrStdout()
	if err := s.Save(ctx, alice, session.Depth(d)); err != nil {
		return err
	}
	fmt.Fprintf(out, "saved Alice as node %d (version %d)\n", *alice.ID, alice.Version)

	alice.Age++
	if err := s.Save(ctx, alice, session.Depth(d)); err != nil {
		return err
	}
	fmt.Fprintf(out, "updated Alice to age %d (version %d)\n", alice.Age, alice.Version)

	if !cleanup {
		return nil
	}
	for _, obj := range all {
		if err := s.Delete(ctx, obj); err != nil {
			return err
		}
	}
	fmt.Fprintln(out, "sample graph deleted")
	return nil
}

// printPlan compiles a save of root and prints the statement and its
// parameters
func printPlan(w io.Writer, root any, depth int) error {
	plan, err := mapping.NewMapper(sample.Registry(), nil).Save(root, depth)
	if err != nil {
		return err
	}
	return printCompilation(w, plan.Compilation)
}

func printCompilation(w io.Writer, comp *cypher.Compilation) error {
	if comp.Empty() {
		fmt.Fprintln(w, "nothing to write")
		return nil
	}
	fmt.Fprintln(w, comp.Statement.Text)
	params, err := json.MarshalIndent(comp.Statement.Parameters, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(params))
	return nil
}
