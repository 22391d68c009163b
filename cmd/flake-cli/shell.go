package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/chzyer/readline"

	"github.com/coldwave/flake-go/pkg/connection"
	"github.com/coldwave/flake-go/pkg/interaction"
	"github.com/coldwave/flake-go/pkg/model"
	"github.com/coldwave/flake-go/pkg/wire"
)

var errQuit = errors.New("quit")

// shell runs commands against one connection.
type shell struct {
	conn *connection.Connection
	out  io.Writer
	rl   *readline.Instance
}

func newShell(conn *connection.Connection, rl *readline.Instance) *shell {
	return &shell{conn: conn, out: rl.Stdout(), rl: rl}
}

// Run reads commands until quit, EOF or ctx ends.
func (s *shell) Run(ctx context.Context, cancel context.CancelFunc) {
	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}

		if err := s.exec(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				fmt.Fprintln(s.out, "Exiting...")
				cancel()
				return
			}
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	}
}

func (s *shell) exec(ctx context.Context, line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
		return nil
	case "quit", "exit", "q":
		return errQuit
	case "ping":
		return s.cmdPing(ctx)
	case "query", "ls":
		return s.cmdQuery(ctx, args)
	case "get", "g":
		return s.cmdGet(ctx, args)
	case "set", "s":
		return s.cmdSet(ctx, args)
	case "create":
		return s.cmdCreate(ctx, args)
	case "addprop":
		return s.cmdAddProp(ctx, args)
	case "delprop":
		return s.cmdDelProp(ctx, args)
	case "invoke":
		return s.cmdInvoke(ctx, args, false)
	case "broadcast":
		return s.cmdInvoke(ctx, args, true)
	case "subscribe", "sub":
		return s.cmdSubscribe(ctx, args, true)
	case "unsubscribe", "unsub":
		return s.cmdSubscribe(ctx, args, false)
	case "watch":
		return s.conn.WatchObjects(ctx, s.printIndication)
	case "destroy":
		return s.cmdRemove(ctx, args, s.conn.DestroyObject)
	case "delete":
		return s.cmdRemove(ctx, args, s.conn.DeleteObject)
	case "save":
		return s.conn.SaveChanges(ctx)
	case "configure":
		return s.cmdConfigure(ctx, args)
	case "whoami":
		fmt.Fprintf(s.out, "%s\n", s.conn.Addr())
		return nil
	default:
		return fmt.Errorf("unknown command: %s (type 'help' for commands)", cmd)
	}
}

func (s *shell) printHelp() {
	fmt.Fprintln(s.out, `
flake Commands:
  Objects:
    query [type-uuid] [id...]       - List objects, optionally of one type and with columns
    create <type-uuid> [prop...]    - Create a router-hosted object
    destroy <addr>                  - Destroy an object
    delete <addr>                   - Delete an object and its stored state
    watch                           - Report objects as they are created and destroyed

  Properties:
    get <addr> [id...]              - Read properties (all without ids)
    set <addr> <prop...>            - Write properties
    addprop <addr> <prop...>        - Create properties
    delprop <addr> <id>             - Delete a property

  Messages:
    invoke <addr> <name> [prop...]    - Send a custom message and wait for the answer
    broadcast <addr> <name> [prop...] - Send a custom message to the object's group
    subscribe <addr>                  - Join the object's group and report its broadcasts
    unsubscribe <addr>                - Leave the object's group

  Router:
    ping                            - Measure the round trip
    save                            - Save router-hosted objects
    configure <timeout-ms>          - Set the indication timeout
    whoami                          - Show the assigned address
    help                            - Show this help
    quit                            - Exit

  Formats:
    addr  0x0003 or 3
    id    0x0300 or 0x0300:uint8
    prop  id:type=value, e.g. 0x0300:uint8=5 or 0x0301:string=hall
    type  int8 int16 int32 uint8 uint16 uint32 bool float datetime uuid string bin`)
}

func (s *shell) cmdPing(ctx context.Context) error {
	rtt, err := s.conn.Ping(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "pong in %s\n", rtt)
	return nil
}

func (s *shell) cmdQuery(ctx context.Context, args []string) error {
	typ := wire.NilID
	if len(args) > 0 && strings.Contains(args[0], "-") {
		var err error
		if typ, err = wire.ParseUniqueID(args[0]); err != nil {
			return err
		}
		args = args[1:]
	}
	cols, err := parseTags(args)
	if err != nil {
		return err
	}
	t, err := s.conn.QueryObjects(ctx, typ, cols...)
	if err != nil {
		return err
	}
	s.printTable(t)
	return nil
}

func (s *shell) printTable(t *model.Table) {
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	cols := t.Columns()
	for i, c := range cols {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprintf(tw, "0x%04x", c.ID())
	}
	fmt.Fprintln(tw)
	for _, row := range t.Rows() {
		for i, c := range cols {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			if p, ok := row.Lookup(c); ok {
				fmt.Fprint(tw, wire.FormatValue(p.Value))
			} else {
				fmt.Fprint(tw, "-")
			}
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
	fmt.Fprintf(s.out, "%d objects\n", t.NumRows())
}

func (s *shell) printProps(props wire.PropArray) {
	ps := props.Props()
	sort.Slice(ps, func(i, j int) bool { return ps[i].Tag.ID() < ps[j].Tag.ID() })
	for _, p := range ps {
		fmt.Fprintf(s.out, "  0x%04x %-8s = %s\n", p.Tag.ID(), strings.ToLower(p.Tag.Type().String()), wire.FormatValue(p.Value))
	}
}

func (s *shell) printIndication(ind *interaction.Indication) {
	fmt.Fprintf(s.out, "\n<- %s from %s to %s", ind.Message, ind.Source, ind.Destination)
	if name := ind.Name(); name != "" {
		fmt.Fprintf(s.out, " %q", name)
	}
	fmt.Fprintln(s.out)
	s.printProps(ind.Payload)
}

// object opens the object named by the first argument.
func (s *shell) object(ctx context.Context, args []string, min int, usage string) (*connection.Object, error) {
	if len(args) < min {
		return nil, fmt.Errorf("usage: %s", usage)
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return nil, err
	}
	return s.conn.OpenObject(ctx, addr)
}

func (s *shell) cmdGet(ctx context.Context, args []string) error {
	obj, err := s.object(ctx, args, 1, "get <addr> [id...]")
	if err != nil {
		return err
	}
	tags, err := parseTags(args[1:])
	if err != nil {
		return err
	}
	props, err := obj.GetProperties(ctx, tags...)
	s.printProps(props)
	if wire.StatusOf(err) == wire.StatusPartialSuccess {
		fmt.Fprintln(s.out, "(some properties are missing)")
		return nil
	}
	return err
}

func (s *shell) cmdSet(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: set <addr> <prop...>")
	}
	props, err := parseProps(args[1:])
	if err != nil {
		return err
	}
	obj, err := s.object(ctx, args, 2, "set <addr> <prop...>")
	if err != nil {
		return err
	}
	return obj.SetProperties(ctx, props)
}

func (s *shell) cmdCreate(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: create <type-uuid> [prop...]")
	}
	typ, err := wire.ParseUniqueID(args[0])
	if err != nil {
		return err
	}
	props, err := parseProps(args[1:])
	if err != nil {
		return err
	}
	obj, err := s.conn.CreateObject(ctx, typ, props)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "created %s (broadcast %s)\n", obj.Addr(), obj.BroadcastAddr())
	return nil
}

func (s *shell) cmdAddProp(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: addprop <addr> <prop...>")
	}
	props, err := parseProps(args[1:])
	if err != nil {
		return err
	}
	obj, err := s.object(ctx, args, 2, "addprop <addr> <prop...>")
	if err != nil {
		return err
	}
	return obj.CreateProperties(ctx, props)
}

func (s *shell) cmdDelProp(ctx context.Context, args []string) error {
	obj, err := s.object(ctx, args, 2, "delprop <addr> <id>")
	if err != nil {
		return err
	}
	tag, err := parseTag(args[1])
	if err != nil {
		return err
	}
	return obj.DeleteProperty(ctx, tag)
}

func (s *shell) cmdInvoke(ctx context.Context, args []string, broadcast bool) error {
	obj, err := s.object(ctx, args, 2, "invoke <addr> <name> [prop...]")
	if err != nil {
		return err
	}
	params, err := parseProps(args[2:])
	if err != nil {
		return err
	}
	if broadcast {
		return obj.Broadcast(args[1], params)
	}
	out, err := obj.Invoke(ctx, args[1], params)
	if err != nil {
		return err
	}
	s.printProps(out)
	return nil
}

func (s *shell) cmdSubscribe(ctx context.Context, args []string, on bool) error {
	obj, err := s.object(ctx, args, 1, "subscribe <addr>")
	if err != nil {
		return err
	}
	if on {
		return obj.Subscribe(ctx, s.printIndication)
	}
	return obj.Unsubscribe(ctx)
}

func (s *shell) cmdRemove(ctx context.Context, args []string, remove func(context.Context, wire.Addr) error) error {
	if len(args) != 1 {
		return errors.New("usage: destroy|delete <addr>")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	return remove(ctx, addr)
}

func (s *shell) cmdConfigure(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: configure <timeout-ms>")
	}
	ms, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("%w: timeout %q", errSyntax, args[0])
	}
	return s.conn.Configure(ctx, wire.NewPropArray(wire.NewUint32(wire.TagIndicationTimeout, uint32(ms))))
}
