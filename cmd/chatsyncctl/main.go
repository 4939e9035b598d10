package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"time"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/client"
	"github.com/matheus3301/chatsync/internal/invite"
	"github.com/matheus3301/chatsync/internal/session"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

type command struct {
	usage string
	help  string
	nargs int
	run   func(ctx context.Context, c *client.Client, args []string) (*structpb.Struct, error)
}

var commands = map[string]command{
	"status": {"status", "Show session status", 0, call(api.SessionServiceName, "GetStatus", nil)},
	"notification": {"notification", "Show the last notification", 0,
		call(api.SessionServiceName, "GetNotification", nil)},
	"pending": {"pending", "List queued writes", 0, call(api.SessionServiceName, "ListPendingWrites", nil)},
	"repair":  {"repair", "Retry queued writes and re-seed a degraded session", 0, call(api.SessionServiceName, "Repair", nil)},

	"friends": {"friends", "Show friends, requests and search results", 0, call(api.FriendServiceName, "Snapshot", nil)},
	"search":  {"search <key>", "Search users by display name prefix", 1, call(api.FriendServiceName, "Search", []string{"key"})},
	"request": {"request <user>", "Send a friend request", 1, call(api.FriendServiceName, "SendRequest", []string{"id"})},
	"accept":  {"accept <user>", "Accept a friend request", 1, call(api.FriendServiceName, "Accept", []string{"id"})},
	"reject":  {"reject <user>", "Reject a friend request", 1, call(api.FriendServiceName, "Reject", []string{"id"})},
	"unfriend": {"unfriend <user>", "Remove a friend", 1,
		call(api.FriendServiceName, "Unfriend", []string{"id"})},
	"notify": {"notify <user> <on|off>", "Toggle notifications for a friend", 2, cmdNotify},
	"view":   {"view <user>", "View a friend or request", 1, call(api.FriendServiceName, "View", []string{"id"})},
	"dismiss": {"dismiss", "Close the viewed friend", 0,
		call(api.FriendServiceName, "Dismiss", nil)},
	"profile":     {"profile", "Show your profile", 0, call(api.FriendServiceName, "GetProfile", nil)},
	"set-profile": {"set-profile <name>", "Set your display name", 1, call(api.FriendServiceName, "SaveProfile", []string{"displayName"})},
	"invite":      {"invite", "Print your add-friend QR code", 0, cmdInvite},
	"join":        {"join <link>", "Send a friend request from an invite link", 1, cmdJoin},

	"chats":  {"chats", "Show conversations and the open timeline", 0, call(api.ChatServiceName, "Snapshot", nil)},
	"unread": {"unread", "Count unread conversations", 0, call(api.ChatServiceName, "CountUnread", nil)},
	"reload": {"reload", "Load summaries of conversations not yet known", 0, call(api.ChatServiceName, "Reload", nil)},
	"talk":   {"talk <user>[,<user>...] [title]", "Open or create a conversation", 1, cmdTalk},
	"open":   {"open <chat>", "Open a conversation", 1, call(api.ChatServiceName, "Open", []string{"chatID"})},
	"close":  {"close", "Close the open conversation", 0, call(api.ChatServiceName, "Close", nil)},
	"send": {"send <chat> <text>", "Send a text message", 2,
		call(api.ChatServiceName, "Send", []string{"chatID", "content"})},
	"describe": {"describe <chat>", "Show a conversation's members and title", 1,
		call(api.ChatServiceName, "Describe", []string{"chatID"})},
	"remove": {"remove <chat>", "Remove a conversation from your list", 1,
		call(api.ChatServiceName, "Remove", []string{"chatID"})},
}

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	flag.Usage = printUsage
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fatal(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	socketPath := session.SocketPath(sessionName)
	c, err := client.New(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for session %q: %v\n", sessionName, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	if args[0] == "watch" {
		cmdWatch(c, args[1:])
		return
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
	if len(args)-1 < cmd.nargs {
		fmt.Fprintf(os.Stderr, "usage: chatsyncctl %s\n", cmd.usage)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := cmd.run(ctx, c, args[1:])
	if err != nil {
		fatal(err)
	}
	if resp != nil && len(resp.GetFields()) > 0 {
		outputJSON(resp)
	}
}

// call builds a command that maps positional arguments onto request fields.
// Extra arguments are joined into the last field.
func call(service, method string, fields []string) func(context.Context, *client.Client, []string) (*structpb.Struct, error) {
	return func(ctx context.Context, c *client.Client, args []string) (*structpb.Struct, error) {
		req := map[string]any{}
		for i, f := range fields {
			if i == len(fields)-1 {
				req[f] = strings.Join(args[i:], " ")
			} else {
				req[f] = args[i]
			}
		}
		return c.Call(ctx, service, method, req)
	}
}

func cmdNotify(ctx context.Context, c *client.Client, args []string) (*structpb.Struct, error) {
	var on bool
	switch args[1] {
	case "on":
		on = true
	case "off":
	default:
		return nil, fmt.Errorf("notifications must be on or off, got %q", args[1])
	}
	return c.Friends(ctx, "SetNotifications", map[string]any{"id": args[0], "on": on})
}

func cmdTalk(ctx context.Context, c *client.Client, args []string) (*structpb.Struct, error) {
	var members []any
	for m := range strings.SplitSeq(args[0], ",") {
		if m = strings.TrimSpace(m); m != "" {
			members = append(members, m)
		}
	}
	return c.Chats(ctx, "OpenOrCreate", map[string]any{
		"members": members,
		"title":   strings.Join(args[1:], " "),
	})
}

func cmdInvite(ctx context.Context, c *client.Client, _ []string) (*structpb.Struct, error) {
	resp, err := c.Session(ctx, "GetStatus", nil)
	if err != nil {
		return nil, err
	}
	link := invite.URL(resp.GetFields()["user"].GetStringValue())
	qr, err := invite.Render(link)
	if err != nil {
		return nil, err
	}
	fmt.Printf("\n%s\n  %s\n", qr, link)
	return nil, nil
}

func cmdJoin(ctx context.Context, c *client.Client, args []string) (*structpb.Struct, error) {
	id, err := invite.Parse(args[0])
	if err != nil {
		return nil, err
	}
	return c.Friends(ctx, "SendRequest", map[string]any{"id": id})
}

func cmdWatch(c *client.Client, args []string) {
	namespace := ""
	if len(args) > 0 {
		namespace = args[0]
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := c.Watch(ctx, namespace, func(evt *structpb.Struct) error {
		f := evt.GetFields()
		ts := time.UnixMilli(int64(f["timestamp"].GetNumberValue())).Format(time.TimeOnly)
		line := fmt.Sprintf("%s %-28s", ts, f["kind"].GetStringValue())
		if p := f["payload"]; p != nil {
			raw, err := protojson.Marshal(p)
			if err == nil {
				line += " " + string(raw)
			}
		}
		fmt.Println(line)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		fatal(err)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatsyncctl [--session <name>] <command> [args]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		cmd := commands[name]
		fmt.Fprintf(os.Stderr, "  %-34s %s\n", cmd.usage, cmd.help)
	}
	fmt.Fprintf(os.Stderr, "  %-34s %s\n", "watch [namespace]", "Stream events (friends. chats. notify. write. session.)")
}

func outputJSON(m *structpb.Struct) {
	raw, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
		return
	}
	fmt.Println(string(raw))
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
