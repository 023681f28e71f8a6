package doctor

import (
	"context"
	"os/exec"
)

// lookPathFunc is the function used to find executables on PATH.
// Package-level variable to allow test overrides.
var lookPathFunc = exec.LookPath

// ToolsCheck verifies that required external tools are available on $PATH.
type ToolsCheck struct {
	gitPath string
}

// NewToolsCheck creates a new tools check for the configured git executable.
func NewToolsCheck(gitPath string) *ToolsCheck {
	if gitPath == "" {
		gitPath = "git"
	}
	return &ToolsCheck{gitPath: gitPath}
}

func (c *ToolsCheck) Name() string {
	return "Tools"
}

func (c *ToolsCheck) Run(_ context.Context) Result {
	result := Result{Name: c.Name()}

	if path, err := lookPathFunc(c.gitPath); err != nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "git",
			Status: StatusFail,
			Detail: c.gitPath + " not found on PATH",
		})
	} else {
		result.Items = append(result.Items, CheckItem{
			Label:  "git",
			Status: StatusPass,
			Detail: path,
		})
	}

	return result
}
