// Package cdn resolves stored attachment references to public URLs. Uploads
// themselves happen outside this service; messages only carry references.
package cdn

import "strings"

// Resolver maps an attachment reference to the URL clients fetch it from.
type Resolver struct {
	baseURL string
}

// NewResolver builds a resolver rooted at baseURL.
func NewResolver(baseURL string) *Resolver {
	return &Resolver{baseURL: strings.TrimRight(baseURL, "/")}
}

// Resolve implements chat.AttachmentResolver. References that already look
// like absolute URLs pass through untouched.
func (r *Resolver) Resolve(ref string) string {
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return r.baseURL + "/" + strings.TrimLeft(ref, "/")
}
