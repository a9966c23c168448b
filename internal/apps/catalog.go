package apps

import (
	"fmt"
	"sort"

	"github.com/bytedance/sonic"
)

// script parameterizes the shared workload simulation. All periods
// are in ticks of active CPU time.
type script struct {
	yieldEvery uint64 // give up the slice this often, 0 = never
	blockEvery uint64 // wait for input this often, 0 = never
	waitTicks  int    // length of each input wait
	savePath   string // sandbox file written on termination
}

// scripted is the single App implementation behind the catalog.
type scripted struct {
	manifest Manifest
	script   script

	activeTicks uint64
	waits       uint64
	yields      uint64
}

func (s *scripted) Manifest() Manifest {
	return s.manifest
}

func (s *scripted) OnTick(tick uint64) Action {
	s.activeTicks++

	if s.script.blockEvery > 0 && s.activeTicks%s.script.blockEvery == 0 {
		s.waits++
		return Action{Kind: ActionBlock, WaitTicks: s.script.waitTicks}
	}
	if s.script.yieldEvery > 0 && s.activeTicks%s.script.yieldEvery == 0 {
		s.yields++
		return Action{Kind: ActionYield}
	}
	return Action{Kind: ActionContinue}
}

func (s *scripted) OnTerminate(save SaveFunc) {
	if s.script.savePath == "" || save == nil {
		return
	}
	state := map[string]interface{}{
		"app":          s.manifest.ID,
		"active_ticks": s.activeTicks,
		"input_waits":  s.waits,
		"yields":       s.yields,
	}
	raw, err := sonic.MarshalIndent(state, "", "  ")
	if err != nil {
		return
	}
	// Best effort: a failed save must not break termination.
	_ = save(s.script.savePath, raw)
}

// definition pairs a manifest with its workload script.
type definition struct {
	manifest Manifest
	script   script
}

// The stock apps. Memory and priority match the shipped machine:
// drawing is the hungriest and most interactive, stories mostly
// idles, music works steadily, puzzle waits on moves.
var catalog = map[string]definition{
	"drawing": {
		manifest: Manifest{ID: "drawing", Name: "Drawing App", Icon: "🎨", Priority: 4, MemoryKB: 128},
		script:   script{blockEvery: 3, waitTicks: 2, savePath: "/kids/drawing/last_session.json"},
	},
	"stories": {
		manifest: Manifest{ID: "stories", Name: "Story Reader", Icon: "📚", Priority: 3, MemoryKB: 64},
		script:   script{yieldEvery: 2, blockEvery: 10, waitTicks: 5, savePath: "/kids/stories/bookmark.json"},
	},
	"music": {
		manifest: Manifest{ID: "music", Name: "Music Player", Icon: "🎵", Priority: 3, MemoryKB: 96},
		script:   script{yieldEvery: 5, savePath: "/kids/music/now_playing.json"},
	},
	"puzzle": {
		manifest: Manifest{ID: "puzzle", Name: "Puzzle Games", Icon: "🧩", Priority: 4, MemoryKB: 80},
		script:   script{blockEvery: 4, waitTicks: 3, savePath: "/kids/puzzle/progress.json"},
	},
}

// NewApp instantiates a catalog app by id.
func NewApp(appID string) (App, error) {
	def, ok := catalog[appID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownApp, appID)
	}
	return &scripted{manifest: def.manifest, script: def.script}, nil
}

// Manifests lists the catalog ordered by id.
func Manifests() []Manifest {
	out := make([]Manifest, 0, len(catalog))
	for _, def := range catalog {
		out = append(out, def.manifest)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
