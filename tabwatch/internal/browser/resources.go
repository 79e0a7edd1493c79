package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// applyResourceBlocking intercepts the requests of page and fails those of
// the listed resource types.
func applyResourceBlocking(page *rod.Page, types []string) {
	block := blockSet(types)
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if block[string(h.Request.Type())] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
}

// blockSet maps configured names (images, fonts, media, stylesheets or raw
// CDP resource types) to CDP resource types.
func blockSet(types []string) map[string]bool {
	alias := map[string]proto.NetworkResourceType{
		"images":      proto.NetworkResourceTypeImage,
		"fonts":       proto.NetworkResourceTypeFont,
		"media":       proto.NetworkResourceTypeMedia,
		"stylesheets": proto.NetworkResourceTypeStylesheet,
	}
	set := make(map[string]bool, len(types))
	for _, t := range types {
		t = strings.ToLower(strings.TrimSpace(t))
		if rt, ok := alias[t]; ok {
			set[string(rt)] = true
			continue
		}
		for _, rt := range []proto.NetworkResourceType{
			proto.NetworkResourceTypeImage, proto.NetworkResourceTypeFont,
			proto.NetworkResourceTypeMedia, proto.NetworkResourceTypeStylesheet,
			proto.NetworkResourceTypeScript, proto.NetworkResourceTypeXHR,
			proto.NetworkResourceTypeFetch,
		} {
			if strings.EqualFold(string(rt), t) {
				set[string(rt)] = true
			}
		}
	}
	return set
}
