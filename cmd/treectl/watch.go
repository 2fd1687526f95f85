package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/treekeeper/treekeeper/tree"
)

var (
	initialColor = color.New(color.FgCyan).SprintFunc()
	createdColor = color.New(color.FgGreen).SprintFunc()
	changedColor = color.New(color.FgYellow).SprintFunc()
	deletedColor = color.New(color.FgRed).SprintFunc()
)

func (a *app) watchCmd() *cobra.Command {
	var count int
	var noAttach bool
	cmd := &cobra.Command{
		Use:   "watch PATH",
		Short: "Print every change of a node until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &changePrinter{out: a.out, limit: count, attach: !noAttach, done: make(chan struct{})}
			reg, err := a.client.ListenNode(cmd.Context(), args[0], !noAttach, p)
			if err != nil {
				return err
			}
			defer reg.Close()
			if !noAttach {
				p.primeAbsent(reg.Cache().Current())
			}

			a.logger.Infof("watching", map[string]any{"path": reg.Path()})
			select {
			case <-p.done:
			case <-cmd.Context().Done():
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "Exit after this many changes (0 waits for a signal)")
	cmd.Flags().BoolVar(&noAttach, "no-attach", false, "Skip printing the state at registration")
	return cmd
}

// changePrinter writes one line per snapshot, labelled by how it differs
// from the previous one.
type changePrinter struct {
	out    io.Writer
	limit  int
	attach bool

	mu    sync.Mutex
	prev  *tree.NodeSnapshot
	seen  int
	done  chan struct{}
	close sync.Once
}

// primeAbsent reports a node found absent at attach time, for which no
// initial snapshot is delivered. It does nothing once a snapshot arrived.
func (p *changePrinter) primeAbsent(s tree.NodeSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prev != nil || s.Exists {
		return
	}
	p.prev = &s
	fmt.Fprintf(p.out, "%s %s absent\n", initialColor("initial"), s.Path)
}

func (p *changePrinter) NodeChanged(s tree.NodeSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Without an attach snapshot, a node at version 0 was just created.
	prevExists := s.Version != 0
	if p.prev != nil {
		prevExists = p.prev.Exists
	}

	var label string
	switch {
	case p.prev == nil && p.attach:
		label = initialColor("initial")
	case !s.Exists:
		label = deletedColor("deleted")
	case !prevExists:
		label = createdColor("created")
	default:
		label = changedColor("changed")
	}
	p.prev = &s

	var err error
	if s.Exists {
		_, err = fmt.Fprintf(p.out, "%s %s version=%d data=%q\n", label, s.Path, s.Version, s.Data)
	} else {
		_, err = fmt.Fprintf(p.out, "%s %s\n", label, s.Path)
	}

	p.seen++
	if p.limit > 0 && p.seen >= p.limit {
		p.close.Do(func() { close(p.done) })
	}
	return err
}
