package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"
	tui "github.com/network-plane/planetui"
	"k8s.io/klog/v2"

	"gptedit/internal/session"
)

const replContext = "table"

// console is where a command handler prints. The REPL backs it with the
// planetui output; tests back it with a buffer.
type console struct {
	info func(string)
	warn func(string)
}

func (c console) infof(format string, args ...any) {
	c.info(fmt.Sprintf(format, args...))
}

func (c console) warnf(format string, args ...any) {
	c.warn(fmt.Sprintf(format, args...))
}

// block prints multi-line text one line at a time.
func (c console) block(s string) {
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		c.info(line)
	}
}

// app is the state behind the REPL commands.
type app struct {
	sess        *session.Session
	cfg         config
	interactive bool
	// ask puts a yes/no question to the user.
	ask func(prompt string) bool
	// view runs the full-screen viewer.
	view func(a *app) error
}

func newApp(sess *session.Session, cfg config) *app {
	fd := os.Stdin.Fd()
	return &app{
		sess:        sess,
		cfg:         cfg,
		interactive: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
		ask:         func(string) bool { return false },
		view:        runViewer,
	}
}

// replCommand is one row of the command table. Handler arguments arrive
// in the order of args, with "" for the ones not given.
type replCommand struct {
	name        string
	aliases     []string
	summary     string
	description string
	args        []tui.ArgSpec
	run         func(a *app, c console, args []string) error
}

func arg(name, description string, required bool) tui.ArgSpec {
	return tui.ArgSpec{Name: name, Type: tui.ArgTypeString, Required: required, Description: description}
}

var commandTable = []replCommand{
	{name: "print", aliases: []string{"p", "ls"}, summary: "List the partitions", run: (*app).cmdPrint},
	{name: "free", aliases: []string{"f"}, summary: "List the free gaps", run: (*app).cmdFree},
	{name: "types", aliases: []string{"t"}, summary: "List known partition types",
		description: "Lists the GPT partition types, or the MBR type codes with 'types mbr'.",
		args:        []tui.ArgSpec{arg("table", "gpt (default) or mbr", false)},
		run:         (*app).cmdTypes},
	{name: "mbr", summary: "Show the MBR records and their GPT aliases", run: (*app).cmdMBR},
	{name: "create", aliases: []string{"new", "n"}, summary: "Create a partition",
		description: "Creates a partition. Use - to leave an argument at its default. Without SIZE the largest gap is filled; without FIRST the first gap that fits is used.",
		args: []tui.ArgSpec{
			arg("type", "Partition type name, alias or GUID", true),
			arg("size", "Size such as 512M or 2GiB", false),
			arg("label", "Partition name", false),
			arg("first", "First LBA", false),
			arg("last", "Last LBA", false),
			arg("guid", "Partition GUID", false),
			arg("system", "'system' to set the system partition attribute", false),
		},
		run: (*app).cmdCreate},
	{name: "delete", aliases: []string{"del", "d"}, summary: "Delete a partition",
		args: []tui.ArgSpec{arg("index", "Partition number", true)},
		run:  (*app).cmdDelete},
	{name: "edit", aliases: []string{"e"}, summary: "Change a partition's type, label or GUID",
		args: []tui.ArgSpec{
			arg("index", "Partition number", true),
			arg("field", "type, label or guid", true),
			arg("value", "New value", true),
		},
		run: (*app).cmdEdit},
	{name: "attr", aliases: []string{"a"}, summary: "Set or clear partition attributes",
		description: "MASK is a comma separated list of names (system, read-only, hidden, no-automount), bit:N terms or numbers.",
		args: []tui.ArgSpec{
			arg("index", "Partition number", true),
			arg("op", "set or clear", true),
			arg("mask", "Attributes", true),
		},
		run: (*app).cmdAttr},
	{name: "sort", summary: "Compact and sort the partition entries", run: (*app).cmdSort},
	{name: "mbr-sync", summary: "Rebuild the MBR from the GPT",
		args: []tui.ArgSpec{arg("force", "'force' to rebuild an MBR that is in sync", false)},
		run:  (*app).cmdMBRSync},
	{name: "mbr-add", summary: "Mirror one partition into the MBR",
		args: []tui.ArgSpec{arg("index", "Partition number", true)},
		run:  (*app).cmdMBRAdd},
	{name: "protect", summary: "Replace the MBR with a protective MBR", run: (*app).cmdProtect},
	{name: "verify", aliases: []string{"v"}, summary: "Check the table for problems", run: (*app).cmdVerify},
	{name: "export", summary: "Save the table to a file",
		args: []tui.ArgSpec{arg("file", "Manifest path", true)},
		run:  (*app).cmdExport},
	{name: "import", summary: "Load the table from a file",
		args: []tui.ArgSpec{arg("file", "Manifest path", true)},
		run:  (*app).cmdImport},
	{name: "reload", summary: "Discard changes and read the table from the device", run: (*app).cmdReload},
	{name: "blank", summary: "Replace the table with an empty one", run: (*app).cmdBlank},
	{name: "write", aliases: []string{"w"}, summary: "Write the table to the device",
		description: "Backs up the current on-disk table, then writes. 'force' writes even if the backup fails, 'dry-run' skips the device writes and 'verbose' dumps every record.",
		args: []tui.ArgSpec{
			arg("opt1", "force, dry-run or verbose", false),
			arg("opt2", "force, dry-run or verbose", false),
			arg("opt3", "force, dry-run or verbose", false),
		},
		run: (*app).cmdWrite},
	{name: "dump", summary: "Dump an on-disk or in-memory structure",
		description: "Usage: " + dumpUsage(),
		args: []tui.ArgSpec{
			arg("what", strings.Join(dumpTargets, ", "), true),
			arg("lba", "First sector for 'dump sector'", false),
			arg("count", "Sector count for 'dump sector'", false),
		},
		run: (*app).cmdDump},
	{name: "view", aliases: []string{"tui"}, summary: "Full-screen view of the disk layout", run: (*app).cmdView},
}

type commandFactory struct {
	app *app
	cmd replCommand
}

func (f *commandFactory) Spec() tui.CommandSpec {
	description := f.cmd.description
	if description == "" {
		description = f.cmd.summary + "."
	}
	return tui.CommandSpec{
		Name:        f.cmd.name,
		Summary:     f.cmd.summary,
		Description: description,
		Context:     replContext,
		Aliases:     f.cmd.aliases,
		Args:        f.cmd.args,
	}
}

func (f *commandFactory) New(rt tui.CommandRuntime) (tui.Command, error) {
	return &command{f}, nil
}

type command struct {
	*commandFactory
}

func (c *command) Execute(rt tui.CommandRuntime, input tui.CommandInput) tui.CommandResult {
	args := make([]string, len(c.cmd.args))
	for i, spec := range c.cmd.args {
		args[i] = input.Args.String(spec.Name)
	}
	con := console{
		info: func(s string) { rt.Output().Info(s) },
		warn: func(s string) { rt.Output().Warn(s) },
	}
	if err := c.cmd.run(c.app, con, args); err != nil {
		rt.Output().Error(err.Error())
		return tui.CommandResult{
			Status: tui.StatusSuccess,
			Error:  &tui.CommandError{Message: err.Error()},
		}
	}
	return tui.CommandResult{Status: tui.StatusSuccess}
}

func registerCommands(a *app) {
	tui.RegisterContext(replContext, "Partition table commands")
	for _, cmd := range commandTable {
		tui.RegisterCommand(&commandFactory{app: a, cmd: cmd})
	}
}

// readlineAsk asks on the REPL's own line editor so history and terminal
// mode stay consistent.
func readlineAsk(rl *readline.Instance) func(string) bool {
	return func(prompt string) bool {
		old := rl.Config.Prompt
		rl.SetPrompt(prompt + " [y/N] ")
		defer rl.SetPrompt(old)
		line, err := rl.Readline()
		if err != nil {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		}
		return false
	}
}

func runREPL(ctx context.Context, a *app) error {
	registerCommands(a)

	if dir := filepath.Dir(a.cfg.HistoryFile); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			klog.Warningf("history disabled: %v", err)
		}
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("gptedit %s> ", filepath.Base(a.sess.Dev.Name())),
		HistoryFile:     a.cfg.HistoryFile,
		AutoComplete:    nil,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("starting line editor: %w", err)
	}
	defer rl.Close()
	a.ask = readlineAsk(rl)

	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	return tui.Run(rl)
}
