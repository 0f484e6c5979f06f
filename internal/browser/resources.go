package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockResources intercepts requests on page and fails those whose type is
// listed (images, fonts, media, stylesheets, or a raw CDP type name). The
// returned router must be stopped when the page is closed.
func blockResources(page *rod.Page, types []string) *rod.HijackRouter {
	blockSet := make(map[string]bool, len(types))
	for _, t := range types {
		blockSet[strings.ToLower(strings.TrimSpace(t))] = true
	}

	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if shouldBlock(blockSet, h.Request.Type()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()

	return router
}

func shouldBlock(blockSet map[string]bool, resType proto.NetworkResourceType) bool {
	lower := strings.ToLower(string(resType))

	// The document itself is never blocked.
	if lower == "document" {
		return false
	}

	switch lower {
	case "image":
		return blockSet["images"] || blockSet["image"]
	case "font":
		return blockSet["fonts"] || blockSet["font"]
	case "media":
		return blockSet["media"]
	case "stylesheet":
		return blockSet["stylesheets"] || blockSet["stylesheet"]
	}

	return blockSet[lower]
}
