package cmds

import (
	"context"
	"fmt"
	"io"
	"kwrelay/internal/backends"
	"kwrelay/internal/ports"
	"kwrelay/internal/registry"
	"kwrelay/internal/types"
	"strings"

	"github.com/spf13/cobra"
)

// registryKind describes one of the two registries the admin commands can edit.
type registryKind struct {
	use      string
	short    string
	noun     string
	resource func(types.Config) string
	open     func(ctx context.Context, store ports.RegistryStore, resource string) (*registry.Registry, error)
}

var wordsRegistry = registryKind{
	use:      "words",
	short:    "Edit the keyword registry directly in the store",
	noun:     "keyword",
	resource: func(c types.Config) string { return c.KeywordsResource },
	open: func(ctx context.Context, store ports.RegistryStore, resource string) (*registry.Registry, error) {
		k, err := registry.OpenKeywords(ctx, store, resource)
		if err != nil {
			return nil, err
		}
		return k.Registry, nil
	},
}

var usersRegistry = registryKind{
	use:      "users",
	short:    "Edit the authorized-user registry directly in the store",
	noun:     "user",
	resource: func(c types.Config) string { return c.UsersResource },
	open: func(ctx context.Context, store ports.RegistryStore, resource string) (*registry.Registry, error) {
		u, err := registry.OpenUsers(ctx, store, resource)
		if err != nil {
			return nil, err
		}
		return u.Registry, nil
	},
}

func newRegistryCmd(opts *options, kind registryKind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   kind.use,
		Short: kind.short,
	}
	withRegistry := func(fn func(ctx context.Context, r *registry.Registry, out io.Writer, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			store, err := backends.RegistryStoreFromEnv(cfg.StoreBackend)
			if err != nil {
				return err
			}
			if c, ok := store.(io.Closer); ok {
				defer func() {
					_ = c.Close()
				}()
			}
			r, err := kind.open(cmd.Context(), store, kind.resource(cfg))
			if err != nil {
				return err
			}
			return fn(cmd.Context(), r, cmd.OutOrStdout(), args)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <" + kind.noun + ">...",
			Short: "Add entries",
			Args:  cobra.MinimumNArgs(1),
			RunE: withRegistry(func(ctx context.Context, r *registry.Registry, out io.Writer, args []string) error {
				for _, arg := range args {
					outcome, err := r.Add(ctx, arg)
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintf(out, "%s %q: %s\n", kind.noun, arg, types.OutcomeTextMap[outcome])
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "remove <" + kind.noun + ">...",
			Short: "Remove entries",
			Args:  cobra.MinimumNArgs(1),
			RunE: withRegistry(func(ctx context.Context, r *registry.Registry, out io.Writer, args []string) error {
				for _, arg := range args {
					outcome, err := r.Remove(ctx, arg)
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintf(out, "%s %q: %s\n", kind.noun, arg, types.OutcomeTextMap[outcome])
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "list",
			Short: "Print all entries, one per line",
			Args:  cobra.NoArgs,
			RunE: withRegistry(func(ctx context.Context, r *registry.Registry, out io.Writer, args []string) error {
				entries := r.List()
				if len(entries) == 0 {
					return nil
				}
				_, err := fmt.Fprintln(out, strings.Join(entries, "\n"))
				return err
			}),
		},
	)
	return cmd
}
