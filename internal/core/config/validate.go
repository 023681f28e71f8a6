package config

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hay-kot/criterio"

	"github.com/colonyops/mend/pkg/tmpl"
)

// CommitMessageData defines available fields for the merge.commit_message template.
type CommitMessageData struct {
	Message  string   // git's prepared MERGE_MSG without comments, may be empty
	Current  string   // current tip (HEAD)
	Incoming string   // incoming tip (MERGE_HEAD)
	Files    []string // resolved paths
	UserID   string   // user committing the merge
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// ValidateDeep performs comprehensive validation of the configuration including
// template syntax, permission patterns, and file accessibility. The configPath argument
// specifies the config file location to validate (empty string skips config file check).
// This calls Validate() first for basic structural validation, then adds I/O checks.
func (c *Config) ValidateDeep(configPath string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	return criterio.ValidateStruct(
		c.validateFileAccess(configPath),
		c.validateCommitMessage(),
		c.validatePermissions(),
	)
}

// Warnings returns non-fatal configuration issues.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	if len(c.Permissions.CommitCode) == 0 {
		warnings = append(warnings, ValidationWarning{
			Category: "Permissions",
			Item:     "commit_code",
			Message:  "no users may commit; every commit will be denied",
		})
	}

	if !c.AuditEnabled() {
		warnings = append(warnings, ValidationWarning{
			Category: "Audit",
			Message:  "audit trail is disabled",
		})
	}

	return warnings
}

// validateFileAccess checks config file, data directory, and git executable.
func (c *Config) validateFileAccess(configPath string) error {
	return criterio.ValidateStruct(
		validateConfigFile(configPath),
		criterio.Run("git_path", c.GitPath, gitExecutableExists),
		criterio.Run("data_dir", c.DataDir, isDirectoryOrNotExist),
	)
}

func validateConfigFile(configPath string) error {
	if configPath == "" {
		return nil
	}

	info, err := os.Stat(configPath)
	if os.IsNotExist(err) {
		return nil // not found is fine, using defaults
	}
	if err != nil {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("cannot access: %w", err))
	}
	if info.IsDir() {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
	}
	return nil
}

// gitExecutableExists validates that the git path is executable.
func gitExecutableExists(path string) error {
	if path == "" {
		return nil
	}
	if _, err := exec.LookPath(path); err != nil {
		return fmt.Errorf("executable not found: %s", path)
	}
	return nil
}

// isDirectoryOrNotExist validates that a path is a directory or doesn't exist.
func isDirectoryOrNotExist(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil // will be created
	}
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("exists but is not a directory")
	}
	return nil
}

// validateCommitMessage renders the commit message template with sample data.
func (c *Config) validateCommitMessage() error {
	sample := CommitMessageData{
		Current:  "0123456789abcdef0123456789abcdef01234567",
		Incoming: "fedcba9876543210fedcba9876543210fedcba98",
		Files:    []string{"main.go"},
		UserID:   "user",
	}
	if _, err := tmpl.Render(c.Merge.CommitMessage, sample); err != nil {
		return criterio.NewFieldErrors("merge.commit_message", fmt.Errorf("template error: %w", err))
	}
	return nil
}

// validatePermissions checks user patterns are valid globs.
func (c *Config) validatePermissions() error {
	var errs criterio.FieldErrorsBuilder
	for i, p := range c.Permissions.CommitCode {
		if !doublestar.ValidatePattern(p) {
			errs = errs.Append(fmt.Sprintf("permissions.commit_code[%d]", i), fmt.Errorf("invalid pattern %q", p))
		}
	}
	return errs.ToError()
}

// RenderCommitMessage renders the configured merge commit message.
func (c *Config) RenderCommitMessage(data CommitMessageData) (string, error) {
	return tmpl.Render(c.Merge.CommitMessage, data)
}
