package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"shelfscan/internal/inventory"
	"shelfscan/internal/ipc"
	"shelfscan/internal/session"
)

const sessionHelp = `Commands:
  select <id>      load an item by id (a bare number works too)
  checkout <name>  check the selected item out to <name>
  checkin [name]   return the selected item
  show             print the selected item
  help             show this help
  quit             leave the session
Scanned labels select their item automatically.`

func newSessionCommand(ctx *commandContext) *cobra.Command {
	var noScan bool

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Interactive check-out desk driven by camera scans",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(store inventory.Store) error {
				runCtx, cancel := context.WithCancel(cmd.Context())
				defer cancel()

				shell := newSessionShell(session.New(store, ctx.cliLogger()), cmd.OutOrStdout(), shouldColorize(cmd.OutOrStdout()))
				var wg sync.WaitGroup
				if !noScan {
					client := ipc.NewClient(ctx.socketPath())
					defer client.Close()
					client.SetWait(cfg.BridgeWait())
					watcher := session.NewWatcher(client, shell.session, session.WatcherOptions{
						Backoff:  cfg.PollBackoff(),
						Logger:   ctx.cliLogger(),
						OnUpdate: shell.onScan,
					})
					wg.Add(1)
					go func() {
						defer wg.Done()
						_ = watcher.Run(runCtx)
					}()
				}

				shell.println(sessionHelp)
				err := shell.run(runCtx, cmd.InOrStdin())
				cancel()
				wg.Wait()
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&noScan, "no-scan", false, "Do not follow camera scans; select items by id only")
	return cmd
}

// sessionShell serializes terminal output between the command loop and scan callbacks.
type sessionShell struct {
	session  *session.Session
	colorize bool

	mu  sync.Mutex
	out io.Writer
}

func newSessionShell(s *session.Session, out io.Writer, colorize bool) *sessionShell {
	return &sessionShell{session: s, out: out, colorize: colorize}
}

func (s *sessionShell) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			quit, err := s.handle(ctx, line)
			if err != nil {
				s.println("error: " + err.Error())
			}
			if quit {
				return nil
			}
		}
	}
}

func (s *sessionShell) handle(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	verb := strings.ToLower(fields[0])
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))

	if _, err := strconv.ParseInt(verb, 10, 64); err == nil {
		verb, rest = "select", fields[0]
	}

	switch verb {
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		s.println(sessionHelp)
	case "show":
		s.printSelection()
	case "select", "load":
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || id < 0 {
			return false, fmt.Errorf("select needs a numeric item id, got %q", rest)
		}
		if _, err := s.session.Load(ctx, id); err != nil {
			if errors.Is(err, inventory.ErrNotFound) {
				return false, fmt.Errorf("item %d not found; selection unchanged", id)
			}
			return false, err
		}
		s.printSelection()
	case "checkout":
		ok, err := s.session.Checkout(ctx, rest)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, errors.New("checkout needs the name of the person taking the item")
		}
		s.printSelection()
	case "checkin":
		if err := s.session.Checkin(ctx, rest); err != nil {
			return false, err
		}
		s.printSelection()
	default:
		return false, fmt.Errorf("unknown command %q (try help)", fields[0])
	}
	return false, nil
}

func (s *sessionShell) onScan(update session.Update) {
	if update.Err != nil {
		if errors.Is(update.Err, inventory.ErrNotFound) {
			s.println(fmt.Sprintf("Scanned item %d is not in the inventory", update.Event.ItemID))
			return
		}
		s.println(fmt.Sprintf("Scanned item %d could not be loaded: %v", update.Event.ItemID, update.Err))
		return
	}
	s.println(formatScanEvent(update.Seq, update.Event))
	s.printSelection()
}

func (s *sessionShell) printSelection() {
	item, ok := s.session.Snapshot()
	if !ok {
		s.println(renderStatusLine("Selection", statusInfo, "No item selected", s.colorize))
		return
	}
	state := s.session.State()
	s.println(renderStatusLine("Selection", sessionStateKind(state),
		fmt.Sprintf("#%d %s (%s)", item.ID, item.Name, stateLabel(state.String())), s.colorize))
	s.println(renderStatusLine("Status", statusInfo, session.SummaryOf(item), s.colorize))
}

func (s *sessionShell) println(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, text)
}
