package display

import (
	tea "github.com/charmbracelet/bubbletea"

	"hop.computer/passage/app"
	"hop.computer/passage/logring"
)

type refreshMsg struct{}

// model implements tea.Model. It re-reads the runtime whenever the ring or a
// connection changes.
type model struct {
	rt        *app.Runtime
	namespace string
	width     int
	view      View

	ringChanged chan *logring.Ring
	connChanged chan *app.Runtime
}

var _ tea.Model = model{}

func newModel(rt *app.Runtime, namespace string, width int) model {
	m := model{
		rt:          rt,
		namespace:   namespace,
		width:       width,
		ringChanged: make(chan *logring.Ring, 1),
		connChanged: make(chan *app.Runtime, 1),
	}
	m.refresh()
	return m
}

func (m *model) refresh() {
	m.view = View{
		Namespace:   m.namespace,
		Connections: m.rt.Connections(),
		Snapshot:    m.rt.Ring().Snapshot(),
	}
}

func (m model) wait() tea.Msg {
	select {
	case <-m.ringChanged:
	case <-m.connChanged:
	}
	return refreshMsg{}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tea.EnterAltScreen, m.wait)
}

// Update redraws on changes and resizes. "q" and Ctrl+C quit.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case refreshMsg:
		m.refresh()
		return m, m.wait
	}
	return m, nil
}

func (m model) View() string {
	return Render(m.view, m.width)
}
