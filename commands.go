package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"gptedit/internal/device"
	"gptedit/internal/session"
	"gptedit/internal/table"
)

var (
	errBadArgument = errors.New("bad argument")
	errNotTerminal = errors.New("standard input is not a terminal")
)

// optional maps the "-" placeholder and a missing argument to "".
func optional(s string) string {
	if s == "-" {
		return ""
	}
	return s
}

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("%w: partition number %q", errBadArgument, s)
	}
	return i, nil
}

func parseLBA(name, s string) (*uint64, error) {
	s = optional(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s LBA %q", errBadArgument, name, s)
	}
	return &v, nil
}

// parseWords checks that every non-empty argument is one of allowed and
// returns the set given.
func parseWords(args []string, allowed ...string) (map[string]bool, error) {
	set := make(map[string]bool)
	for _, a := range args {
		if a == "" {
			continue
		}
		ok := false
		for _, w := range allowed {
			if a == w {
				ok = true
				break
			}
		}
		if !ok {
			return nil, fmt.Errorf("%w: %q, expected one of %s", errBadArgument, a, strings.Join(allowed, ", "))
		}
		set[a] = true
	}
	return set, nil
}

func (a *app) cmdPrint(c console, _ []string) error {
	t := a.sess.Table
	c.block(describeDisk(t, a.sess.Dev.Name()))
	if t.Used() == 0 {
		c.info("No partitions")
		return nil
	}
	c.block(renderPartitions(t))
	return nil
}

func (a *app) cmdFree(c console, _ []string) error {
	t := a.sess.Table
	if t.LargestFreeSpace().Length == 0 {
		c.info("No free space")
		return nil
	}
	c.block(renderFree(t))
	return nil
}

func (a *app) cmdTypes(c console, args []string) error {
	switch optional(args[0]) {
	case "", "gpt":
		c.block(renderTypes())
	case "mbr":
		c.block(renderMBRTypes())
	default:
		return fmt.Errorf("%w: %q, expected gpt or mbr", errBadArgument, args[0])
	}
	return nil
}

func (a *app) cmdMBR(c console, _ []string) error {
	c.block(renderMBR(a.sess.Table))
	if !a.sess.Table.MBRSync {
		c.warn("The MBR does not mirror the GPT; use mbr-sync or protect")
	}
	return nil
}

func (a *app) cmdCreate(c console, args []string) error {
	opts := table.CreateOptions{
		Type:  args[0],
		Size:  optional(args[1]),
		Label: optional(args[2]),
		GUID:  optional(args[5]),
	}
	var err error
	if opts.FirstLBA, err = parseLBA("first", args[3]); err != nil {
		return err
	}
	if opts.LastLBA, err = parseLBA("last", args[4]); err != nil {
		return err
	}
	switch optional(args[6]) {
	case "":
	case "system":
		opts.System = true
	default:
		return fmt.Errorf("%w: %q, expected system", errBadArgument, args[6])
	}

	i, err := a.sess.Table.Create(opts)
	if err != nil {
		return err
	}
	p := a.sess.Table.Partitions[i]
	c.infof("Created partition %d: sectors %d-%d (%d sectors)", i, p.FirstLBA, p.LastLBA, p.Blocks())
	if _, ok := a.sess.Table.MBRSlotOf(i); ok {
		c.info("Partition mirrored into the MBR")
	}
	return nil
}

func (a *app) cmdDelete(c console, args []string) error {
	i, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	if err := a.sess.Table.Delete(i); err != nil {
		return err
	}
	c.infof("Deleted partition %d", i)
	if !a.sess.Table.MBRSync {
		c.warn("The MBR no longer mirrors the GPT; use mbr-sync or protect")
	}
	return nil
}

func (a *app) cmdEdit(c console, args []string) error {
	i, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	value := args[2]
	var opts table.EditOptions
	switch args[1] {
	case "type":
		opts.Type = &value
	case "label", "name":
		opts.Label = &value
	case "guid":
		opts.GUID = &value
	default:
		return fmt.Errorf("%w: field %q, expected type, label or guid", errBadArgument, args[1])
	}
	if err := a.sess.Table.Edit(i, opts); err != nil {
		return err
	}
	c.infof("Partition %d %s set", i, args[1])
	return nil
}

func (a *app) cmdAttr(c console, args []string) error {
	i, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	var op table.AttrOp
	switch args[1] {
	case "set":
		op = table.AttrSet
	case "clear":
		op = table.AttrClear
	default:
		return fmt.Errorf("%w: %q, expected set or clear", errBadArgument, args[1])
	}
	mask, err := table.ParseAttributeMask(args[2])
	if err != nil {
		return err
	}
	if err := a.sess.Table.EditAttributes(i, op, mask); err != nil {
		return err
	}
	attrs := a.sess.Table.Partitions[i].Attributes
	names := table.AttributeNames(attrs)
	if len(names) == 0 {
		names = []string{"none named"}
	}
	c.infof("Partition %d attributes: %016x (%s)", i, attrs, strings.Join(names, ", "))
	return nil
}

func (a *app) cmdSort(c console, _ []string) error {
	a.sess.Table.CompactAndSort()
	c.info("Partitions sorted by start sector; numbers may have changed")
	return nil
}

func (a *app) cmdMBRSync(c console, args []string) error {
	words, err := parseWords(args, "force")
	if err != nil {
		return err
	}
	skipped, err := a.sess.Table.ResyncMBR(words["force"])
	if errors.Is(err, table.ErrMBRAlreadySynced) {
		c.info("MBR already mirrors the GPT; use 'mbr-sync force' to rebuild it anyway")
		return nil
	}
	if err != nil {
		return err
	}
	for _, s := range skipped {
		c.warnf("Skipped: %v", s)
	}
	c.block(renderMBR(a.sess.Table))
	return nil
}

func (a *app) cmdMBRAdd(c console, args []string) error {
	i, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	t := a.sess.Table
	if err := t.SyncPartitionToMBR(i); err != nil {
		return err
	}
	t.BuildAliasTable()
	slot, _ := t.MBRSlotOf(i)
	c.infof("Partition %d mirrored in MBR slot %d", i, slot)
	return nil
}

func (a *app) cmdProtect(c console, _ []string) error {
	a.sess.Table.Protect()
	c.info("MBR replaced with a protective MBR")
	return nil
}

func (a *app) cmdVerify(c console, _ []string) error {
	err := a.sess.Table.Verify()
	if err == nil {
		c.info("No problems found")
		return nil
	}
	problems := multierr.Errors(err)
	for _, p := range problems {
		c.warn(p.Error())
	}
	return fmt.Errorf("%d problems found", len(problems))
}

func (a *app) cmdExport(c console, args []string) error {
	data, err := a.sess.Export(args[0])
	if err != nil {
		return err
	}
	c.infof("Table exported to %s (sectors in %s)", args[0], data)
	return nil
}

func (a *app) cmdImport(c console, args []string) error {
	warnings, err := a.sess.Import(args[0])
	if err != nil {
		return err
	}
	for _, w := range warnings {
		c.warn(w)
	}
	c.infof("Table imported from %s; use write to save it to %s", args[0], a.sess.Dev.Name())
	return nil
}

func (a *app) cmdReload(c console, _ []string) error {
	if err := a.sess.Reload(); err != nil {
		return err
	}
	c.infof("Table reloaded from %s (%s)", a.sess.Dev.Name(), a.sess.Report.State)
	for _, d := range a.sess.Report.Diagnostics {
		c.warn(d.Error())
	}
	return nil
}

func (a *app) cmdBlank(c console, _ []string) error {
	if err := a.sess.Blank(); err != nil {
		return err
	}
	c.info("Table replaced with a blank one")
	return nil
}

func (a *app) cmdWrite(c console, args []string) error {
	words, err := parseWords(args, "force", "dry-run", "verbose")
	if err != nil {
		return err
	}
	if a.cfg.ReadOnly {
		return fmt.Errorf("%w: refusing to write %s", device.ErrReadOnly, a.sess.Dev.Name())
	}
	if !a.cfg.Yes && !words["dry-run"] {
		if !a.interactive {
			return fmt.Errorf("%w: rerun with --yes to write without confirmation", errNotTerminal)
		}
		if !a.ask(fmt.Sprintf("Overwrite the partition table on %s?", a.sess.Dev.Name())) {
			c.info("Write cancelled")
			return nil
		}
	}

	res, err := a.sess.Write(session.WriteOptions{
		Force:   words["force"],
		DryRun:  words["dry-run"],
		Verbose: words["verbose"],
	})
	if errors.Is(err, session.ErrTableLikelyCorrupt) && res.Backup != "" {
		return fmt.Errorf("%w; the previous table can be restored with 'import %s' and 'write'", err, res.Backup)
	}
	return err
}

func (a *app) cmdDump(c console, args []string) error {
	var sb strings.Builder
	t := a.sess.Table
	switch args[0] {
	case "dev":
		dumpDevice(&sb, a.sess.Dev)
	case "header":
		dumpHeader(&sb, t.Header)
	case "alt-header":
		dumpHeader(&sb, t.AltHeader)
	case "partitions":
		dumpPartitions(&sb, t)
	case "mbr":
		dumpMBR(&sb, t.MBR)
	case "sector":
		lba, err := parseLBA("first", args[1])
		if err != nil {
			return err
		}
		if lba == nil {
			return fmt.Errorf("%w: usage: %s", errBadArgument, dumpUsage())
		}
		count := uint64(1)
		if s := optional(args[2]); s != "" {
			if count, err = strconv.ParseUint(s, 0, 64); err != nil || count == 0 {
				return fmt.Errorf("%w: sector count %q", errBadArgument, s)
			}
		}
		if err := dumpSectors(&sb, a.sess.Dev, *lba, count); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %q; usage: %s", errBadArgument, args[0], dumpUsage())
	}
	if sb.Len() == 0 {
		c.info("Nothing to dump")
		return nil
	}
	c.block(sb.String())
	return nil
}

func (a *app) cmdView(c console, _ []string) error {
	if !a.interactive {
		return errNotTerminal
	}
	return a.view(a)
}
