package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dirpipe/dirpipe/internal/ldap"
)

// validate is the singleton validator instance
var validate = validator.New()

// Validate validates the configuration using struct tags plus custom rules
// that cannot be expressed declaratively.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

// validateCustomRules performs validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if cfg.Directory.Domain == "" && len(cfg.Directory.URLs) == 0 {
		return fmt.Errorf("directory: either domain or urls must be set")
	}

	if err := ldap.ValidateDN(cfg.Directory.BaseDN); err != nil {
		return fmt.Errorf("directory.base_dn: %w", err)
	}

	if err := ldap.ValidateDN(cfg.Trash.Branch); err != nil {
		return fmt.Errorf("trash.branch: %w", err)
	}

	for i, branch := range cfg.Trash.WatchedBranches {
		if err := ldap.ValidateDN(branch); err != nil {
			return fmt.Errorf("trash.watched_branches[%d]: %w", i, err)
		}
	}

	if cfg.Directory.MaxBackoff < cfg.Directory.InitialBackoff {
		return fmt.Errorf("directory: max_backoff must be at least initial_backoff")
	}

	return nil
}

// formatValidationError turns validator's error into a readable message
// keyed by config field path.
func formatValidationError(err error) error {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	var msgs []string
	for _, fe := range errs {
		// Strip the leading "Config." from the namespace
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		msgs = append(msgs, fmt.Sprintf("%s: failed %q validation", field, fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
