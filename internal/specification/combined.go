package specification

import (
	"context"
	"time"

	"github.com/hazyhaar/rambler/internal/capture"
)

// userExtractorOffset namespaces extractor ids coming from the user's
// specification module away from the bundled defaults module's ids:
// both start numbering extractors at 1 from their own independent goja
// runtime, so the combined id space handed to the browser-side capture
// must keep them apart.
const userExtractorOffset = 1 << 32

// Combined merges the bundled default properties worker with an
// optional user-supplied specification worker into one runner.Monitor,
// per SUPPLEMENTED FEATURES: "loaded as a defaults specification module
// merged with the user's." user may be nil, in which case Combined
// behaves exactly like defaults alone.
type Combined struct {
	defaults *Worker
	user     *Worker
}

// Combine builds a Combined monitor. defaults must not be nil.
func Combine(defaults, user *Worker) *Combined {
	return &Combined{defaults: defaults, user: user}
}

// ExtractorSpecs returns every extractor from both workers with
// globally unique ids, ready to hand to capture.NewCaptureFunc.
func (c *Combined) ExtractorSpecs(ctx context.Context) ([]capture.ExtractorSpec, error) {
	defExtractors, err := c.defaults.Extractors(ctx)
	if err != nil {
		return nil, err
	}
	specs := make([]capture.ExtractorSpec, 0, len(defExtractors))
	for _, e := range defExtractors {
		specs = append(specs, capture.ExtractorSpec{ID: e.ID, SourceCode: e.SourceCode})
	}
	if c.user == nil {
		return specs, nil
	}
	userExtractors, err := c.user.Extractors(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range userExtractors {
		specs = append(specs, capture.ExtractorSpec{ID: e.ID + userExtractorOffset, SourceCode: e.SourceCode})
	}
	return specs, nil
}

func (c *Combined) split(snapshots map[int64]any) (defSnap, userSnap map[int64]any) {
	defSnap = make(map[int64]any, len(snapshots))
	userSnap = make(map[int64]any, len(snapshots))
	for id, v := range snapshots {
		if id >= userExtractorOffset {
			userSnap[id-userExtractorOffset] = v
			continue
		}
		defSnap[id] = v
	}
	return defSnap, userSnap
}

// Step implements runner.Monitor, fanning a combined snapshot map out
// to whichever worker owns each extractor id and merging both property
// maps. Property names are not expected to collide: the bundled
// defaults use fixed names matching §8's seed scenario names, and a
// user module is free to name its own properties anything else.
func (c *Combined) Step(ctx context.Context, snapshots map[int64]any, now time.Duration) (map[string]Value, error) {
	defSnap, userSnap := c.split(snapshots)
	merged, err := c.defaults.Step(ctx, defSnap, now)
	if err != nil {
		return nil, err
	}
	if c.user == nil {
		return merged, nil
	}
	userProps, err := c.user.Step(ctx, userSnap, now)
	if err != nil {
		return nil, err
	}
	for name, v := range userProps {
		merged[name] = v
	}
	return merged, nil
}

// FinalReport implements runner.Monitor's end-of-run collapse, merging
// both workers' decided verdicts.
func (c *Combined) FinalReport(ctx context.Context, now time.Duration) (map[string]Value, error) {
	merged, err := c.defaults.FinalReport(ctx, now)
	if err != nil {
		return nil, err
	}
	if c.user == nil {
		return merged, nil
	}
	userFinal, err := c.user.FinalReport(ctx, now)
	if err != nil {
		return nil, err
	}
	for name, v := range userFinal {
		merged[name] = v
	}
	return merged, nil
}
