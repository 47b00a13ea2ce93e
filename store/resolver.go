package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// A LinkResolver resolves a link target id to a display label. The boolean
// result makes "not found" explicit; lookup failures resolve to not found
// rather than an error, matching the read-path policy of the rest of the
// store.
type LinkResolver interface {
	Resolve(ctx context.Context, id string) (label string, ok bool)
}

// A ResolverSet maps each link type to its resolver.
type ResolverSet map[LinkType]LinkResolver

// ResolveLink resolves the label for l, or reports not found when the link
// type has no resolver or the target does not exist.
func (rs ResolverSet) ResolveLink(ctx context.Context, l Link) (string, bool) {
	r, ok := rs[l.Type]
	if !ok {
		return "", false
	}
	return r.Resolve(ctx, l.ID)
}

// NewResolvers builds the standard resolver set over the remote resource
// collections linked messages can reference.
func NewResolvers(remote Remote) ResolverSet {
	return ResolverSet{
		LinkReservation: &resourceResolver{remote: remote, resource: "reservations", labelPrefix: "Reservation"},
		LinkOffer:       &resourceResolver{remote: remote, resource: "offers", labelPrefix: "Offer"},
		LinkQuotation:   &resourceResolver{remote: remote, resource: "quotations", labelPrefix: "Quotation"},
	}
}

// resourceResolver scans one resource collection for a record with a matching
// id and derives a label from its display fields.
type resourceResolver struct {
	remote      Remote
	resource    string
	labelPrefix string
}

func (r *resourceResolver) Resolve(ctx context.Context, id string) (string, bool) {
	records, err := r.remote.GetAll(ctx, r.resource)
	if err != nil {
		return "", false
	}
	for _, raw := range records {
		var rec struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Title    string `json:"title"`
			FileName string `json:"fileName"`
			RefNo    string `json:"refNo"`
		}
		if err := json.Unmarshal(raw, &rec); err != nil || rec.ID != id {
			continue
		}
		for _, label := range []string{rec.Name, rec.Title, rec.FileName, rec.RefNo} {
			if label != "" {
				return fmt.Sprintf("%s %s", r.labelPrefix, label), true
			}
		}
		return fmt.Sprintf("%s %s", r.labelPrefix, rec.ID), true
	}
	return "", false
}
