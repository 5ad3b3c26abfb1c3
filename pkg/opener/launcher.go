package opener

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

//go:generate mockgen -source launcher.go -destination mock/launcher.go

// Launcher はパスをOS既定のアプリケーションで開く
type Launcher interface {
	Open(ctx context.Context, path string) error
}

// CommandLauncher runs an external command with the path appended as the
// last argument.
type CommandLauncher struct {
	Name string
	Args []string
}

// PlatformLauncher はruntime.GOOSに応じた既定のLauncherを返す
func PlatformLauncher() CommandLauncher {
	return launcherFor(runtime.GOOS)
}

func launcherFor(goos string) CommandLauncher {
	switch goos {
	case "darwin":
		return CommandLauncher{Name: "open"}
	case "windows":
		return CommandLauncher{Name: "rundll32", Args: []string{"url.dll,FileProtocolHandler"}}
	default:
		return CommandLauncher{Name: "xdg-open"}
	}
}

// Open implements Launcher.
func (l CommandLauncher) Open(ctx context.Context, path string) error {
	args := append(append([]string{}, l.Args...), path)
	if err := exec.CommandContext(ctx, l.Name, args...).Run(); err != nil {
		return fmt.Errorf("%s %s: %w", l.Name, path, err)
	}
	return nil
}
