package main

import (
	"fmt"
	"strings"

	pretty "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"gptedit/internal/device"
	"gptedit/internal/human"
	"gptedit/internal/mbr"
	"gptedit/internal/parttype"
	"gptedit/internal/table"
)

func newTableWriter(headers ...any) pretty.Writer {
	t := pretty.NewWriter()
	t.AppendHeader(pretty.Row(headers))
	style := pretty.StyleColoredDark
	style.Color.IndexColumn = text.Colors{text.FgHiBlue, text.BgHiBlack}
	style.Color.Header = text.Colors{text.FgHiBlue, text.BgHiBlack}
	t.SetStyle(style)
	return t
}

func describeDisk(t *table.Table, name string) string {
	var sb strings.Builder
	size := t.SectorCount * t.SectorSize
	fmt.Fprintf(&sb, "Disk %s: %d sectors, %s\n", name, t.SectorCount, human.FormatBytes(size))
	fmt.Fprintf(&sb, "Sector size: %d bytes\n", t.SectorSize)
	fmt.Fprintf(&sb, "Disk GUID: %s\n", t.Header.DiskGUID)
	fmt.Fprintf(&sb, "Usable sectors: %d to %d\n", t.Header.FirstUsableLBA, t.Header.LastUsableLBA)
	fmt.Fprintf(&sb, "Partitions: %d of %d used\n", t.Used(), len(t.Partitions))
	if t.MBRSync {
		sb.WriteString("MBR: in sync with the GPT")
	} else {
		sb.WriteString("MBR: out of sync with the GPT")
	}
	return sb.String()
}

// renderPartitions lists the used entries. MBR shows the slot aliasing
// the entry, if any.
func renderPartitions(t *table.Table) string {
	w := newTableWriter("#", "START", "END", "SIZE", "TYPE", "NAME", "ATTRIBUTES", "MBR")
	for i, p := range t.Partitions {
		if p.IsEmpty() {
			continue
		}
		slot := "-"
		if s, ok := t.MBRSlotOf(i); ok {
			slot = fmt.Sprint(s)
		}
		w.AppendRow(pretty.Row{
			i,
			p.FirstLBA,
			p.LastLBA,
			human.FormatBytes(p.Blocks() * t.SectorSize),
			parttype.Name(p.Type),
			p.Label(),
			strings.Join(table.AttributeNames(p.Attributes), ","),
			slot,
		})
	}
	return w.Render()
}

func renderFree(t *table.Table) string {
	w := newTableWriter("START", "END", "SECTORS", "SIZE")
	var total uint64
	for e := range t.FreeSpaces() {
		w.AppendRow(pretty.Row{e.Start, e.End(), e.Length, human.FormatBytes(e.Length * t.SectorSize)})
		total += e.Length
	}
	w.AppendFooter(pretty.Row{"", "TOTAL", total, human.FormatBytes(total * t.SectorSize)})
	return w.Render()
}

func renderTypes() string {
	w := newTableWriter("NAME", "GUID", "MBR", "ALIASES")
	for _, ty := range parttype.Types {
		codes := make([]string, 0, len(ty.MBR))
		for _, c := range ty.MBR {
			codes = append(codes, fmt.Sprintf("%02x", c))
		}
		w.AppendRow(pretty.Row{ty.Name, ty.GUID, strings.Join(codes, ","), strings.Join(ty.Aliases, ",")})
	}
	return w.Render()
}

func renderMBRTypes() string {
	w := newTableWriter("CODE", "NAME")
	for c := range 256 {
		if mbr.KnownType(uint8(c)) {
			w.AppendRow(pretty.Row{fmt.Sprintf("%02x", c), mbr.TypeName(uint8(c))})
		}
	}
	return w.Render()
}

func renderMBR(t *table.Table) string {
	w := newTableWriter("SLOT", "BOOT", "TYPE", "START", "SECTORS", "GPT")
	for slot, p := range t.MBR.Partitions {
		if p.IsEmpty() {
			w.AppendRow(pretty.Row{slot, "", "empty", "", "", ""})
			continue
		}
		boot := ""
		if p.Bootable() {
			boot = "*"
		}
		entry := "-"
		if i, ok := t.AliasOf(slot); ok {
			entry = fmt.Sprint(i)
		} else if mbr.IsExtendedType(p.Type) {
			// Logical partitions inside the container have no GPT entry.
			entry = "extended"
		}
		w.AppendRow(pretty.Row{slot, boot, fmt.Sprintf("%02x %s", p.Type, mbr.TypeName(p.Type)), p.FirstLBA, p.Sectors, entry})
	}
	return w.Render()
}

func renderDisks(disks []device.Disk) string {
	w := newTableWriter("DEVICE", "SIZE", "REMOVABLE", "MOUNTED")
	for _, d := range disks {
		w.AppendRow(pretty.Row{d.Path, human.FormatBytes(d.Size), yesNo(d.Removable), yesNo(d.Mounted)})
	}
	return w.Render()
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}
