package oauthflow

import (
	"fmt"
	"os/exec"
	"runtime"
)

// OpenBrowser hands url to the system's default browser opener.
func OpenBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "linux":
		return exec.Command("xdg-open", url).Start()
	default:
		return fmt.Errorf("[openBrowser] unsupported platform %q", runtime.GOOS)
	}
}
