package proc

import (
	"context"
	"runtime"
)

// OpenBrowser asks the desktop to open url.
func OpenBrowser(ctx context.Context, r Runner, url string) error {
	var argv []string
	switch runtime.GOOS {
	case "darwin":
		argv = []string{"open", url}
	case "windows":
		argv = []string{"rundll32", "url.dll,FileProtocolHandler", url}
	default:
		argv = []string{"xdg-open", url}
	}
	_, err := r.Run(ctx, "", argv...)
	return err
}
