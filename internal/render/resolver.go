package render

import (
	"context"
	"fmt"
	"sort"

	"github.com/iamstudio/brandrender/internal/compositor"
	"github.com/iamstudio/brandrender/internal/model"
)

// CompositionResolver maps a render request to a composition of the bundle.
type CompositionResolver struct {
	engine compositor.Engine
}

func NewCompositionResolver(engine compositor.Engine) *CompositionResolver {
	return &CompositionResolver{engine: engine}
}

// Resolve finds the composition for req.TemplateID and req.FormatKey.
func (r *CompositionResolver) Resolve(ctx context.Context, loc compositor.ServeLocation, req model.RenderRequest) (compositor.Composition, error) {
	comps, err := r.engine.Compositions(ctx, loc, compositor.PropsFor(req))
	if err != nil {
		return compositor.Composition{}, fmt.Errorf("list compositions: %w", err)
	}

	id := compositor.CompositionID(req.TemplateID, req.FormatKey)
	ids := make([]string, 0, len(comps))
	for _, c := range comps {
		if c.ID == id {
			return c, nil
		}
		ids = append(ids, c.ID)
	}

	sort.Strings(ids)
	sample := ids
	if len(sample) > maxListedCompositions {
		sample = sample[:maxListedCompositions]
	}
	return compositor.Composition{}, &CompositionNotFoundError{
		ID:        id,
		Available: sample,
		Total:     len(ids),
	}
}
