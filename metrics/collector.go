package metrics

import (
	"sync/atomic"
	"time"
)

type SearchMetric struct {
	Goroutines  int
	Budget      int // Simulations requested, 0 when only time bounded
	Duration    time.Duration
	Episodes    int // Simulations completed
	Terminals   int // Simulations that ended on a finished game
	Collisions  int // Descents retried because the leaf was being expanded
	IsTreeReset bool
}

type MoveMetric struct {
	Step   int
	Player int // 1 black, -1 white
	Move   string
	Value  float64
	SearchMetric
}

type GameMetric struct {
	Winner     int // 1 black, -1 white, 0 draw
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	TotalMoves int
}

type Collector interface {
	Start(goroutines, budget int)
	SetTreeReset(value bool)
	AddEpisode()
	AddTerminal()
	AddCollision()
	Complete() SearchMetric
}

type collector struct {
	goroutines  int
	budget      int
	startTime   time.Time
	episodes    atomic.Int32
	terminals   atomic.Int32
	collisions  atomic.Int32
	isTreeReset atomic.Bool
}

func NewCollector() Collector {
	return &collector{}
}

func (m *collector) SetTreeReset(value bool) {
	m.isTreeReset.Store(value)
}

func (m *collector) Start(goroutines, budget int) {
	m.startTime = time.Now()
	m.goroutines = goroutines
	m.budget = budget
	m.episodes.Store(0)
	m.terminals.Store(0)
	m.collisions.Store(0)
}

func (m *collector) AddEpisode() {
	m.episodes.Add(1)
}

func (m *collector) AddTerminal() {
	m.terminals.Add(1)
}

func (m *collector) AddCollision() {
	m.collisions.Add(1)
}

func (m *collector) Complete() SearchMetric {
	return SearchMetric{
		Goroutines:  m.goroutines,
		Budget:      m.budget,
		Duration:    time.Since(m.startTime),
		Episodes:    int(m.episodes.Load()),
		Terminals:   int(m.terminals.Load()),
		Collisions:  int(m.collisions.Load()),
		IsTreeReset: m.isTreeReset.Load(),
	}
}

type dummyCollector struct{}

func NewDummyCollector() Collector {
	return &dummyCollector{}
}

func (m *dummyCollector) Start(goroutines, budget int) {}
func (m *dummyCollector) SetTreeReset(value bool)      {}
func (m *dummyCollector) AddEpisode()                  {}
func (m *dummyCollector) AddTerminal()                 {}
func (m *dummyCollector) AddCollision()                {}
func (m *dummyCollector) Complete() SearchMetric       { return SearchMetric{} }
