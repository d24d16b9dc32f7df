// Package actions implements the action model and engine (C6): a
// pruned Tree of weighted candidates gathered from small in-page
// enumeration scripts, uniform random descent to pick one, and the
// concrete apply semantics for each resulting Action.
package actions

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Format selects the alphabet TypeText draws from.
type Format int

const (
	FormatText Format = iota
	FormatEmail
	FormatNumber
)

// Candidate mirrors the syntactic ActionCandidate union of §3.
type Candidate struct {
	Kind     CandidateKind
	Name     string
	Content  string
	Point    Point
	Format   Format
	Origin   Point
	Distance int
}

type CandidateKind int

const (
	CandidateBack CandidateKind = iota
	CandidateClick
	CandidateTypeText
	CandidatePressKey
	CandidateScrollUp
	CandidateScrollDown
	CandidateReload
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Weighted pairs a candidate with its enumeration weight and a timeout
// for post-action quiescence, as returned by the page-side scripts.
type Weighted struct {
	Weight    float64
	Timeout   time.Duration
	Candidate Candidate
}

// Tree is a pruned weighted tree of candidates: one Branch per
// enumeration script, Leaf at each concrete candidate.
type Tree struct {
	Leaf     *Weighted
	Branches []Tree
}

func leaf(w Weighted) Tree { return Tree{Leaf: &w} }

// IsEmpty reports whether the tree has no leaves at all.
func (t Tree) IsEmpty() bool {
	if t.Leaf != nil {
		return false
	}
	for _, b := range t.Branches {
		if !b.IsEmpty() {
			return false
		}
	}
	return true
}

// prune drops branches with no reachable leaves.
func prune(t Tree) Tree {
	if t.Leaf != nil {
		return t
	}
	var kept []Tree
	for _, b := range t.Branches {
		pb := prune(b)
		if !pb.IsEmpty() {
			kept = append(kept, pb)
		}
	}
	return Tree{Branches: kept}
}

// Page is the minimal surface the engine needs from the paused page:
// running the three candidate-enumeration scripts, and learning the
// current URL/content-type for the origin fallback rule.
type Page interface {
	EnumerateClicks(ctx context.Context) ([]Weighted, error)
	EnumerateInputs(ctx context.Context) ([]Weighted, error)
	EnumerateScrolls(ctx context.Context) ([]Weighted, error)
}

// Engine builds and samples the action tree.
type Engine struct {
	page   Page
	origin string
	rand   *rand.Rand
}

func NewEngine(page Page, origin string, seed int64) *Engine {
	return &Engine{page: page, origin: origin, rand: rand.New(rand.NewSource(seed))}
}

// Available builds the pruned candidate tree for the current state.
// Off-origin navigation and non-HTML documents fall back to back(state)
// directly, which is itself empty when hasBack is false — mirroring
// original_source/src/browser/actions.rs's back() helper, which does
// not treat an empty fallback as an error in that branch. Only when
// the on-origin HTML tree prunes to nothing does an empty fallback
// become the "no fallback action available" error of the seed
// no-action-available scenario.
func (e *Engine) Available(ctx context.Context, currentURL, contentType string, hasBack bool) (Tree, error) {
	back := backTree(hasBack)

	if !sameOrigin(e.origin, currentURL) || !strings.Contains(strings.ToLower(contentType), "text/html") {
		return back, nil
	}

	var branches []Tree
	for _, enumerate := range []func(context.Context) ([]Weighted, error){
		e.page.EnumerateClicks, e.page.EnumerateInputs, e.page.EnumerateScrolls,
	} {
		ws, err := enumerate(ctx)
		if err != nil {
			return Tree{}, fmt.Errorf("actions: enumerate: %w", err)
		}
		var leaves []Tree
		for _, w := range ws {
			leaves = append(leaves, leaf(w))
		}
		branches = append(branches, Tree{Branches: leaves})
	}

	tree := prune(Tree{Branches: branches})
	if !tree.IsEmpty() {
		return tree, nil
	}
	if back.IsEmpty() {
		return Tree{}, fmt.Errorf("actions: no fallback action available")
	}
	return back, nil
}

// backTree is the single-candidate tree original_source's back() helper
// builds: a lone Back leaf when navigation history has an entry to go
// to, otherwise an empty branch.
func backTree(hasBack bool) Tree {
	if !hasBack {
		return Tree{Branches: []Tree{}}
	}
	return leaf(Weighted{Weight: 1, Timeout: 2 * time.Second, Candidate: Candidate{Kind: CandidateBack}})
}

func sameOrigin(origin, url string) bool {
	return strings.HasPrefix(url, origin)
}

// Sample performs uniform random descent: at each Branch, pick one
// child uniformly; at the Leaf, materialize a concrete Action.
func (e *Engine) Sample(tree Tree) (Action, time.Duration, error) {
	t := tree
	for t.Leaf == nil {
		if len(t.Branches) == 0 {
			return nil, 0, fmt.Errorf("actions: empty tree")
		}
		t = t.Branches[e.rand.Intn(len(t.Branches))]
	}
	return materialize(e.rand, *t.Leaf)
}

func materialize(r *rand.Rand, w Weighted) (Action, time.Duration, error) {
	c := w.Candidate
	switch c.Kind {
	case CandidateBack:
		return Back{}, w.Timeout, nil
	case CandidateReload:
		return Reload{}, w.Timeout, nil
	case CandidateClick:
		return Click{Point: c.Point}, w.Timeout, nil
	case CandidateTypeText:
		return TypeText{Text: randomText(r, c.Format), Delay: 20 * time.Millisecond}, w.Timeout, nil
	case CandidatePressKey:
		keys := []string{"Enter", "Escape"}
		return PressKey{Code: keys[r.Intn(len(keys))]}, w.Timeout, nil
	case CandidateScrollUp:
		return ScrollUp{Origin: c.Origin, Distance: randomDistance(r, c.Distance)}, w.Timeout, nil
	case CandidateScrollDown:
		return ScrollDown{Origin: c.Origin, Distance: randomDistance(r, c.Distance)}, w.Timeout, nil
	}
	return nil, 0, fmt.Errorf("actions: unknown candidate kind %v", c.Kind)
}

// randomDistance draws uniformly from [d/2, d].
func randomDistance(r *rand.Rand, d int) int {
	if d <= 0 {
		return 0
	}
	lo := d / 2
	return lo + r.Intn(d-lo+1)
}

const (
	textAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	numAlphabet  = "0123456789"
)

func randomText(r *rand.Rand, format Format) string {
	const length = 8
	switch format {
	case FormatEmail:
		return randomString(r, textAlphabet, 6) + "@" + randomString(r, textAlphabet, 5) + ".test"
	case FormatNumber:
		return randomString(r, numAlphabet, length)
	default:
		return randomString(r, textAlphabet, length)
	}
}

func randomString(r *rand.Rand, alphabet string, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[r.Intn(len(alphabet))]
	}
	return string(b)
}
