package app

import (
	"log"
	"mime"
)

// Minimal container images ship without /etc/mime.types, which leaves .css
// served as text/plain and the browser refusing the stylesheet.
func init() {
	registerMimeType(".css", "text/css; charset=utf-8")
}

func registerMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("app: register MIME type for %s: %v", ext, err)
	}
}
