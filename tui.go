package main

import (
	"fmt"
	"slices"
	"strings"

	tcell "github.com/gdamore/tcell/v2"

	"gptedit/internal/human"
	"gptedit/internal/parttype"
	"gptedit/internal/table"
)

// viewRow is one line of the viewer: a partition or a free gap.
type viewRow struct {
	free  bool
	index int
	first uint64
	last  uint64
}

// layoutRows lists partitions and free gaps in disk order.
func layoutRows(t *table.Table) []viewRow {
	var rows []viewRow
	for i, p := range t.Partitions {
		if !p.IsEmpty() {
			rows = append(rows, viewRow{index: i, first: p.FirstLBA, last: p.LastLBA})
		}
	}
	for e := range t.FreeSpaces() {
		rows = append(rows, viewRow{free: true, index: -1, first: e.Start, last: e.End()})
	}
	slices.SortStableFunc(rows, func(a, b viewRow) int {
		switch {
		case a.first < b.first:
			return -1
		case a.first > b.first:
			return 1
		}
		return 0
	})
	return rows
}

type viewerState struct {
	t        *table.Table
	device   string
	rows     []viewRow
	selected int
	offset   int
}

func newViewerState(t *table.Table, device string) *viewerState {
	return &viewerState{t: t, device: device, rows: layoutRows(t)}
}

func runViewer(a *app) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("creating screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("initializing screen: %w", err)
	}
	defer screen.Fini()

	screen.SetStyle(tcell.StyleDefault.
		Foreground(tcell.ColorWhite).
		Background(tcell.ColorBlack))
	screen.Clear()

	s := newViewerState(a.sess.Table, a.sess.Dev.Name())
	for {
		s.render(screen)
		screen.Show()

		switch ev := screen.PollEvent().(type) {
		case *tcell.EventKey:
			if s.handleKey(ev.Key(), ev.Rune()) {
				return nil
			}
		case *tcell.EventResize:
			screen.Sync()
		}
	}
}

// handleKey moves the selection and reports whether the viewer should
// close.
func (s *viewerState) handleKey(key tcell.Key, r rune) bool {
	switch key {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyUp:
		s.move(-1)
	case tcell.KeyDown:
		s.move(1)
	case tcell.KeyHome:
		s.move(-len(s.rows))
	case tcell.KeyEnd:
		s.move(len(s.rows))
	case tcell.KeyRune:
		switch r {
		case 'q', 'Q':
			return true
		case 'k':
			s.move(-1)
		case 'j':
			s.move(1)
		}
	}
	return false
}

func (s *viewerState) move(delta int) {
	if len(s.rows) == 0 {
		return
	}
	s.selected = max(0, min(len(s.rows)-1, s.selected+delta))
}

func (s *viewerState) rowText(r viewRow) string {
	size := human.FormatBytes((r.last - r.first + 1) * s.t.SectorSize)
	if r.free {
		return fmt.Sprintf("  -  %12d %12d %10s  free space", r.first, r.last, size)
	}
	p := s.t.Partitions[r.index]
	return fmt.Sprintf("%3d  %12d %12d %10s  %-28s %s", r.index, r.first, r.last, size, parttype.Name(p.Type), p.Label())
}

// statusText describes the selected row on the status line.
func (s *viewerState) statusText() string {
	if len(s.rows) == 0 {
		return "Empty table"
	}
	r := s.rows[s.selected]
	if r.free {
		return fmt.Sprintf("Free: %d sectors", r.last-r.first+1)
	}
	p := s.t.Partitions[r.index]
	parts := []string{"GUID " + p.GUID.String()}
	if names := table.AttributeNames(p.Attributes); len(names) > 0 {
		parts = append(parts, strings.Join(names, ","))
	}
	if slot, ok := s.t.MBRSlotOf(r.index); ok {
		parts = append(parts, fmt.Sprintf("MBR slot %d", slot))
	}
	return strings.Join(parts, " | ")
}

// diskMap draws the disk across width cells: '#' partitions, '.' free
// space and '*' the selected row.
func (s *viewerState) diskMap(width int) string {
	if width <= 0 || s.t.SectorCount == 0 {
		return ""
	}
	cells := []byte(strings.Repeat(" ", width))
	per := float64(s.t.SectorCount) / float64(width)
	for i, r := range s.rows {
		ch := byte('#')
		if r.free {
			ch = '.'
		}
		if i == s.selected {
			ch = '*'
		}
		from := int(float64(r.first) / per)
		to := int(float64(r.last) / per)
		for x := from; x <= to && x < width; x++ {
			if cells[x] == ' ' || i == s.selected {
				cells[x] = ch
			}
		}
	}
	return string(cells)
}

func drawText(screen tcell.Screen, x, y, width int, text string, style tcell.Style) {
	for _, ch := range text {
		if x >= width {
			break
		}
		screen.SetContent(x, y, ch, nil, style)
		x++
	}
}

func (s *viewerState) render(screen tcell.Screen) {
	screen.Clear()
	width, height := screen.Size()

	title := fmt.Sprintf("=== %s: %d sectors of %d bytes ===", s.device, s.t.SectorCount, s.t.SectorSize)
	drawText(screen, max(0, (width-len(title))/2), 0, width, title, tcell.StyleDefault.Bold(true))
	drawText(screen, 0, 1, width, s.diskMap(width), tcell.StyleDefault.Foreground(tcell.ColorGreen))
	drawText(screen, 0, 3, width, fmt.Sprintf("%3s  %12s %12s %10s  %-28s %s", "#", "START", "END", "SIZE", "TYPE", "NAME"), tcell.StyleDefault.Bold(true))

	top := 4
	visible := max(1, height-top-2)
	if s.selected < s.offset {
		s.offset = s.selected
	}
	if s.selected >= s.offset+visible {
		s.offset = s.selected - visible + 1
	}
	for i := s.offset; i < len(s.rows) && i-s.offset < visible; i++ {
		style := tcell.StyleDefault
		prefix := "  "
		if i == s.selected {
			style = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorWhite)
			prefix = "> "
		} else if s.rows[i].free {
			style = style.Dim(true)
		}
		drawText(screen, 0, top+i-s.offset, width, prefix+s.rowText(s.rows[i]), style)
	}

	statusY := height - 2
	for x := range width {
		screen.SetContent(x, statusY, ' ', nil, tcell.StyleDefault.Reverse(true))
	}
	drawText(screen, 0, statusY, width, s.statusText(), tcell.StyleDefault.Reverse(true))

	instructions := "↑↓/jk: Navigate | Home/End | Q/Esc: Back to prompt"
	drawText(screen, max(0, (width-len(instructions))/2), height-1, width, instructions, tcell.StyleDefault.Dim(true))
}
