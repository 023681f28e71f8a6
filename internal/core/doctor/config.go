package doctor

import (
	"context"
	"strings"

	"github.com/colonyops/mend/internal/core/config"
)

// ConfigCheck validates the loaded configuration.
type ConfigCheck struct {
	cfg  *config.Config
	path string
}

// NewConfigCheck creates a check of cfg as loaded from path.
func NewConfigCheck(cfg *config.Config, path string) *ConfigCheck {
	return &ConfigCheck{cfg: cfg, path: path}
}

func (c *ConfigCheck) Name() string {
	return "Configuration"
}

func (c *ConfigCheck) Run(_ context.Context) Result {
	result := Result{Name: c.Name()}

	if err := c.cfg.ValidateDeep(c.path); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			if line = strings.TrimSpace(line); line == "" {
				continue
			}
			result.Items = append(result.Items, CheckItem{
				Label:  "invalid",
				Status: StatusFail,
				Detail: line,
			})
		}
	} else {
		result.Items = append(result.Items, CheckItem{
			Label:  "valid",
			Status: StatusPass,
			Detail: c.path,
		})
	}

	for _, w := range c.cfg.Warnings() {
		label := w.Category
		if w.Item != "" {
			label += " " + w.Item
		}
		result.Items = append(result.Items, CheckItem{
			Label:  label,
			Status: StatusWarn,
			Detail: w.Message,
		})
	}

	return result
}
