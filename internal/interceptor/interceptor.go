// Package interceptor implements the response-stage request filter (C3):
// one Fetch-domain hijacker per page that rewrites HTML documents and
// JavaScript resources through internal/instrument before the browser
// ever parses them, and blocks configured resource types. Grounded in
// the teacher's request-interception pattern (domwatch/internal/browser
// resources.go), extended from request-stage blocking to response-stage
// body rewriting since that is the only hook point at which a response
// body exists to instrument.
package interceptor

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/rambler/internal/instrument"
)

// Config selects which resource types never reach the page at all.
type Config struct {
	BlockResourceTypes []string
}

// Attach installs the single Fetch-domain hijacker for page. Only one
// hijacker may be active per page; this is the sole place resources.go's
// blocking behavior and source instrumentation both live, so they don't
// fight over the hijack slot.
func Attach(page *rod.Page, cfg Config, log *slog.Logger) {
	blocked := make(map[string]bool, len(cfg.BlockResourceTypes))
	for _, t := range cfg.BlockResourceTypes {
		blocked[strings.ToLower(t)] = true
	}

	router := page.HijackRequests()

	router.MustAdd("*", func(ctx *rod.Hijack) {
		resType := strings.ToLower(string(ctx.Request.Type()))
		if blockedType(blocked, resType) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}

		if err := ctx.LoadResponse(http.DefaultClient, true); err != nil {
			// Fail-open: let the browser proceed with whatever the
			// underlying transport produced.
			log.Debug("interceptor: load response failed", "url", ctx.Request.URL().String(), "err", err)
			return
		}

		if status := ctx.Response.Payload().ResponseStatusCode; status != 0 && status != http.StatusOK {
			// Upstream status != 200: continue as-is, untouched.
			return
		}

		contentType := ctx.Response.Headers().Get("Content-Type")
		etag := ctx.Response.Headers().Get("Etag")
		body := ctx.Response.Body()

		rewritten, sourceID, ok := rewrite(contentType, etag, body)
		if !ok {
			return
		}

		ctx.Response.SetBody(rewritten)
		ctx.Response.SetHeader("etag", sourceIDHeader(sourceID))
	})

	go router.Run()
}

func blockedType(blocked map[string]bool, resType string) bool {
	switch resType {
	case "image":
		return blocked["images"]
	case "font":
		return blocked["fonts"]
	case "media":
		return blocked["media"]
	case "stylesheet":
		return blocked["stylesheets"]
	}
	return blocked[resType]
}

// rewrite dispatches by content-type. Anything that isn't HTML or
// JavaScript passes through unmodified (ok=false). source_id is derived
// from the upstream Etag response header when present, falling back to
// hashing the body bytes.
func rewrite(contentType, etag, body string) (rewritten string, sourceID instrument.SourceID, ok bool) {
	ct := strings.ToLower(contentType)
	id := sourceIDFor(etag, body)

	switch {
	case strings.Contains(ct, "text/html"):
		out, err := instrument.Document(id, body)
		if err != nil {
			return "", 0, false
		}
		return out, id, true
	case isJavaScriptContentType(ct):
		out, err := instrument.Source(id, body, instrument.KindAmbiguous)
		if err != nil {
			return "", 0, false
		}
		return out, id, true
	}
	return "", 0, false
}

func isJavaScriptContentType(ct string) bool {
	for _, prefix := range []string{"text/javascript", "application/javascript", "application/x-javascript", "text/ecmascript", "module"} {
		if strings.Contains(ct, prefix) {
			return true
		}
	}
	return false
}

// sourceIDFor hashes etag when the upstream response carried one,
// otherwise hashes the body bytes.
func sourceIDFor(etag, body string) instrument.SourceID {
	if etag != "" {
		return instrument.HashBytes([]byte(etag))
	}
	return instrument.HashBytes([]byte(body))
}

func sourceIDHeader(id instrument.SourceID) string {
	return strconv.FormatUint(uint64(id), 10)
}
