package tui

import (
	"context"
	"strings"
	"unicode"

	"github.com/matheus3301/parley/internal/call"
)

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

// aliases maps short forms to command names.
var aliases = map[string]string{
	"q":     "quit",
	"h":     "help",
	"o":     "open",
	"chat":  "open",
	"s":     "search",
	"r":     "reply",
	"rm":    "delete",
	"del":   "delete",
	"vcall": "videocall",
	"wp":    "wallpaper",
}

// ParseCommand parses a command string (without the leading ':'). Names are
// case-insensitive and aliases are expanded.
func ParseCommand(input string) Command {
	input = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), ":"))
	name, args, _ := strings.Cut(input, " ")
	cmd := Command{Name: strings.ToLower(name), Args: strings.TrimSpace(args)}
	if full, ok := aliases[cmd.Name]; ok {
		cmd.Name = full
	}
	return cmd
}

// Arg splits off the first word of Args, returning it and the rest.
func (c Command) Arg() (string, string) {
	first, rest, _ := strings.Cut(c.Args, " ")
	return first, strings.TrimSpace(rest)
}

// RefAndRest reads an optional leading message number from Args.
func (c Command) RefAndRest() (string, string) {
	first, rest := c.Arg()
	if first != "" && strings.IndexFunc(first, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		return first, rest
	}
	return "", c.Args
}

// runCommand executes a command entered at the ':' prompt.
func (a *App) runCommand(cmd Command) {
	vm := a.vm
	switch cmd.Name {
	case "":
	case "quit":
		a.Stop()
	case "help":
		a.show(a.help.Name())
	case "retry":
		a.do(vm.Retry)
	case "share":
		a.showShare()
	case "search":
		a.showSearch()
		if cmd.Args != "" {
			a.search.SetQuery(cmd.Args)
			a.runSearch(cmd.Args)
		}
	case "open":
		peer := a.conversations.FindByName(cmd.Args)
		if peer == "" {
			vm.Flash.Warn("no conversation matches " + cmd.Args)
			return
		}
		a.openConversation(peer)
	case "older":
		a.do(vm.LoadOlder)
	case "reply":
		vm.Reply(cmd.Args)
	case "react":
		ref, emoji := cmd.RefAndRest()
		a.do(func(ctx context.Context) { vm.React(ctx, ref, emoji) })
	case "edit":
		ref, text := cmd.RefAndRest()
		if text == "" {
			vm.Flash.Warn("usage: :edit N <text>")
			return
		}
		a.do(func(ctx context.Context) { vm.Edit(ctx, ref, text) })
	case "delete":
		a.do(func(ctx context.Context) { vm.Delete(ctx, cmd.Args) })
	case "resend":
		vm.Resend(cmd.Args)
	case "save":
		a.do(func(ctx context.Context) { vm.Save(ctx, cmd.Args) })
	case "attach":
		path, caption := cmd.Arg()
		vm.Attach(path, caption)
	case "wallpaper":
		a.do(func(ctx context.Context) { vm.Wallpaper(ctx, cmd.Args) })
	case "call":
		a.placeCall(call.Audio)
	case "videocall":
		a.placeCall(call.Video)
	case "hangup":
		a.do(vm.Hangup)
	default:
		vm.Flash.Warn("unknown command: " + cmd.Name)
	}
}
