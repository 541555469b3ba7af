// Package tui browses a rasterized road network in the terminal.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/pdok/roadtile/atlas"
	"github.com/pdok/roadtile/autotile"
	"github.com/pdok/roadtile/compositor"
	"github.com/pdok/roadtile/mapview"
	"github.com/pdok/roadtile/raster"
)

const (
	zoomStep = 0.5
	// fraction of the view moved per pan key
	panStep = 0.25
)

type Model struct {
	title  string
	grid   *raster.Grid
	view   *mapview.View
	comp   *compositor.Compositor
	text   *Glyphs
	width  int
	height int
	status string
	fitted bool
	help   help.Model
}

// New attaches a compositor on view that draws to a glyph surface.
// The view is fitted on the grid at the first window size message.
func New(title string, view *mapview.View, grid *raster.Grid, masks *autotile.MaskGrid, a atlas.Atlas, opts compositor.Options) (Model, error) {
	comp, err := compositor.New(grid, masks, a, nil, opts)
	if err != nil {
		return Model{}, err
	}
	m := Model{title: title, grid: grid, view: view, comp: comp, text: NewGlyphs(a), help: help.New()}
	comp.OnAttach(view, compositor.SurfaceFunc(func() compositor.Surface { return m.text }))
	return m, nil
}

func (m Model) MapView() *mapview.View {
	return m.view
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.view.Resize(msg.Width/CharsPerPixel, max(0, msg.Height-2))
		if !m.fitted {
			m.view.Fit(m.grid.Extent())
			m.fitted = true
		}
	case tea.KeyMsg:
		w, h := m.view.Size()
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Left):
			m.view.Pan(-panStep*float64(w), 0)
		case key.Matches(msg, keys.Right):
			m.view.Pan(panStep*float64(w), 0)
		case key.Matches(msg, keys.Up):
			m.view.Pan(0, -panStep*float64(h))
		case key.Matches(msg, keys.Down):
			m.view.Pan(0, panStep*float64(h))
		case key.Matches(msg, keys.ZoomIn):
			m.view.ZoomBy(zoomStep)
		case key.Matches(msg, keys.ZoomOut):
			m.view.ZoomBy(-zoomStep)
		case key.Matches(msg, keys.Fit):
			m.view.Fit(m.grid.Extent())
		}
	}
	m.status = m.statusLine()
	return m, nil
}

func (m Model) statusLine() string {
	f := m.comp.Last()
	lon, lat := m.view.Center()
	line := fmt.Sprintf("zoom %.1f  lon=%.5f lat=%.5f  cell %dpx  drawn %d", m.view.Zoom(), lon, lat, f.CellPx, f.Drawn)
	if f.Missing > 0 {
		line += fmt.Sprintf("  missing %d", f.Missing)
	}
	return line
}

func (m Model) View() string {
	header := titleStyle.Render(m.title)
	help := "  " + m.help.View(keys)
	top := truncate.String(lipgloss.JoinHorizontal(lipgloss.Bottom, header, help), uint(max(0, m.width)))
	body := roadStyle.Render(strings.Join(m.text.Lines(), "\n"))
	footer := dimStyle.Render(truncate.String(m.status, uint(max(0, m.width))))
	return lipgloss.JoinVertical(lipgloss.Left, top, body, footer)
}
