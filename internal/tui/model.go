package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"schemarag/internal/domain"
	"schemarag/internal/summarizer"
)

// SearchPort is the TUI-facing subset of the schema service.
type SearchPort interface {
	Query(ctx context.Context, query string, topK int) ([]domain.SimilarityResult, error)
	Lookup(ctx context.Context, id string) (domain.Chunk, domain.Summary, error)
}

// hit is a ranked chunk with its stored content.
type hit struct {
	result  domain.SimilarityResult
	chunk   domain.Chunk
	summary string
}

type resultsMsg struct {
	query string
	hits  []hit
	err   error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	ctx       context.Context
	service   SearchPort
	topK      int
	input     textinput.Model
	viewport  viewport.Model
	hits      []hit
	summary   string
	status    string
	cursor    int
	ready     bool
	searching bool
	lastQuery string
}

// New creates a new TUI model instance. summary is shown under the header.
func New(ctx context.Context, service SearchPort, summary string, topK int) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the schema and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	if topK < 1 {
		topK = 3
	}
	return Model{ctx: ctx, service: service, topK: topK, input: ti, viewport: vp, summary: summary, status: "Index loaded. Type to search."}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) search(q string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.service.Query(m.ctx, q, m.topK)
		if err != nil {
			return resultsMsg{query: q, err: err}
		}
		hits := make([]hit, 0, len(res))
		for _, r := range res {
			c, sm, err := m.service.Lookup(m.ctx, r.ChunkID)
			if err != nil {
				return resultsMsg{query: q, err: err}
			}
			hits = append(hits, hit{result: r, chunk: c, summary: sm.Text})
		}
		return resultsMsg{query: q, hits: hits}
	}
}

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around result and query boxes
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 2                                    // header + summary
		totalFooterLines := 1                                    // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1 // 1 spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case resultsMsg:
		m.searching = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.hits = nil
		} else {
			m.status = fmt.Sprintf("%d chunk(s) for %q", len(msg.hits), msg.query)
			m.hits = msg.hits
			m.cursor = 0
			m.lastQuery = msg.query
		}
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" && !m.searching {
				m.searching = true
				m.status = fmt.Sprintf("Searching %q...", q)
				return m, m.search(q)
			}
		case "down":
			if len(m.hits) > 0 {
				m.cursor = (m.cursor + 1) % len(m.hits)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "up":
			if len(m.hits) > 0 {
				m.cursor = (m.cursor - 1 + len(m.hits)) % len(m.hits)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Schema Search")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrentResult() string {
	if len(m.hits) == 0 {
		return "No results yet."
	}
	h := m.hits[m.cursor]
	title := fmt.Sprintf("Result %d/%d  %s  score=%.3f", m.cursor+1, len(m.hits), h.result.ChunkID, h.result.Score)
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")
	b.WriteString(highlightBestClause(h.summary, m.lastQuery))
	b.WriteString("\n\n")
	b.WriteString(renderChunk(h.chunk))
	return b.String()
}

func renderChunk(c domain.Chunk) string {
	var b strings.Builder
	for _, n := range c.Nodes {
		fmt.Fprintf(&b, "%s %s", typeStyle.Render(n.Type), n.Name)
		if len(n.Measures) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(n.Measures, ", "))
		}
		b.WriteByte('\n')
	}
	for _, r := range c.Relationships {
		fmt.Fprintf(&b, "%s -[%s]-> %s\n", r.From, r.Label(), r.To)
	}
	return strings.TrimRight(b.String(), "\n")
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	typeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	identRe        = regexp.MustCompile(`[\p{L}\p{N}_]+`)
)

// highlightBestClause emphasises the summary clause sharing the most terms with query.
func highlightBestClause(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	clauses := strings.Split(text, summarizer.Separator)
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return text
	}
	bestIdx := -1
	bestScore := 0
	for i, c := range clauses {
		if score := tokenOverlapScore(qTokens, c); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return text
	}
	clauses[bestIdx] = highlightStyle.Render(clauses[bestIdx])
	return strings.Join(clauses, summarizer.Separator)
}

func toTokenSet(s string) map[string]struct{} {
	tokens := identRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, clause string) int {
	score := 0
	tokens := identRe.FindAllString(strings.ToLower(clause), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
