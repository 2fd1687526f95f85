package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/treekeeper/treekeeper/coord"
	"github.com/treekeeper/treekeeper/tree"
)

func (a *app) existsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exists PATH",
		Short: "Print whether a node exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.opContext(cmd)
			defer cancel()
			ok, err := a.client.CheckExists(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, strconv.FormatBool(ok))
			return nil
		},
	}
}

func (a *app) createCmd() *cobra.Command {
	var kind, data string
	cmd := &cobra.Command{
		Use:   "create PATH",
		Short: "Create a node and any missing ancestors",
		Long: `Create a node and any missing ancestors. Ancestors are always
persistent and empty; --kind and --data apply to the last level only.
Prints the created path, which differs from PATH for sequential kinds.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, ok := coord.ParseKind(kind)
			if !ok {
				return fmt.Errorf("invalid kind %q", kind)
			}
			ctx, cancel := a.opContext(cmd)
			defer cancel()
			created, err := a.client.CreateNode(ctx, args[0], k, tree.WithData([]byte(data)))
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, created)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", coord.Persistent.String(),
		"Node kind (persistent, persistent_sequential, ephemeral, ephemeral_sequential)")
	cmd.Flags().StringVar(&data, "data", "", "Payload of the created node")
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete PATH",
		Short: "Delete a node and its whole subtree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.opContext(cmd)
			defer cancel()
			return a.client.DeleteNode(ctx, args[0])
		},
	}
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get PATH",
		Short: "Print a node's data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.opContext(cmd)
			defer cancel()
			data, err := a.client.GetData(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s\n", data)
			return nil
		},
	}
}

func (a *app) setCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set PATH DATA",
		Short: "Replace a node's data (DATA of - reads stdin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data := []byte(args[1])
			if args[1] == "-" {
				var err error
				if data, err = io.ReadAll(cmd.InOrStdin()); err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			}
			ctx, cancel := a.opContext(cmd)
			defer cancel()
			return a.client.SetData(ctx, args[0], data)
		},
	}
}

func (a *app) lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls PATH",
		Short: "List a node's children",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.opContext(cmd)
			defer cancel()
			children, found, err := a.client.GetChildren(ctx, args[0])
			if err != nil {
				return err
			}
			return a.printChildren(args[0], children, found)
		},
	}
}

func (a *app) findCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find PATH PATTERN",
		Short: "List the children whose whole name matches PATTERN",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.opContext(cmd)
			defer cancel()
			matched, found, err := a.client.FindChildren(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return a.printChildren(args[0], matched, found)
		},
	}
}

func (a *app) printChildren(path string, names []string, found bool) error {
	if !found {
		return fmt.Errorf("%w: %s", tree.ErrNodeNotFound, path)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintln(a.out, name)
	}
	return nil
}
