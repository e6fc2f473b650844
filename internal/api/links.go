package api

import (
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-sheets/internal/humastar"
)

// links maps operation paths to their RFC 8288 Link header values.
// Enables restish hypermedia navigation via `restish links <url>`.
var links = map[string][]string{
	"/health": {
		`</api/v1/info>; rel="info"`,
		`</api/v1/layers>; rel="layers"`,
		`</api/v1/panel>; rel="panel"`,
		`</api/v1/snapshots>; rel="snapshots"`,
		`</openapi.json>; rel="service-desc"`,
	},
	"/api/v1/info": {
		`</health>; rel="up"`,
		`</api/v1/layers>; rel="layers"`,
	},
	"/api/v1/layers": {
		`</api/v1/layers/{kind}>; rel="item"`,
		`</api/v1/snapshots>; rel="snapshots"`,
	},
	"/api/v1/layers/{kind}": {
		`</api/v1/layers>; rel="collection"`,
	},
	"/api/v1/layers/{kind}/features/{index}": {
		`</api/v1/panel>; rel="panel"`,
	},
	"/api/v1/panel": {
		`</api/v1/panel/clear>; rel="clear"`,
		`</api/v1/click>; rel="click"`,
	},
	"/api/v1/snapshots": {
		`</api/v1/layers>; rel="layers"`,
	},
}

// LinkTransformer returns a Huma Transformer that injects RFC 8288 Link
// headers: static relations, a self link on item endpoints, and the
// pagination and action links of bodies implementing humastar.Pager or
// humastar.Actor.
func LinkTransformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range links[op.Path] {
			ctx.AppendHeader("Link", link)
		}

		// Item endpoints get a self link
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}

		if p, ok := v.(humastar.Pager); ok {
			for _, link := range p.PaginationLinks(ctx.URL().Path) {
				ctx.AppendHeader("Link", link)
			}
		}
		if a, ok := v.(humastar.Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}

		return v, nil
	}
}
