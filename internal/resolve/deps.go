package resolve

import (
	"context"

	"hlsup/internal/config"
	"hlsup/internal/metadata"
	"hlsup/internal/progress"
	"hlsup/internal/tools"
)

// Toolchain is the part of the ghcup manager a run drives.
type Toolchain interface {
	ListTool(ctx context.Context, kind tools.Kind, category tools.Category) ([]tools.ToolInfo, error)
	LatestAvailable(ctx context.Context, kind tools.Kind, tag string) (tools.ToolInfo, bool, error)
	FindLatestUserInstalledTool(ctx context.Context, kind tools.Kind) (tools.ToolInfo, error)
	IsInstalled(ctx context.Context, kind tools.Kind, version string) (bool, error)
	Upgrade(ctx context.Context, enabled bool, sink progress.Sink) error
	InstalledServerVariants(ctx context.Context) (map[string][]string, error)
	Install(ctx context.Context, tc tools.Toolchain, dir string, sink progress.Sink) (string, error)
}

// MetadataSource returns release metadata, cached under storagePath.
type MetadataSource interface {
	Retrieve(ctx context.Context, storagePath string) (metadata.Retrieved, error)
}

// Prompter asks the user to make decisions a run cannot make alone.
type Prompter interface {
	ChooseMode(ctx context.Context) (config.ManageMode, error)
	// ConfirmInstall lists the tools about to be downloaded.
	ConfirmInstall(ctx context.Context, missing []tools.ToolInfo) (bool, error)
}

// ModeStore persists the chosen management mode.
type ModeStore interface {
	SaveMode(mode config.ManageMode) error
}

// ModeStoreFunc adapts a function to ModeStore.
type ModeStoreFunc func(config.ManageMode) error

func (f ModeStoreFunc) SaveMode(mode config.ManageMode) error { return f(mode) }

// Observer follows a run. Report receives progress from long operations.
// Warned carries fallbacks the user should see even when the run succeeds.
type Observer interface {
	progress.Sink
	Entered(state State)
	Finished(state State, detail string)
	Failed(state State, err error)
	Warned(state State, message string)
}

type nopObserver struct{}

func (nopObserver) Report(progress.Update) {}
func (nopObserver) Entered(State)          {}
func (nopObserver) Finished(State, string) {}
func (nopObserver) Failed(State, error)    {}
func (nopObserver) Warned(State, string)   {}
