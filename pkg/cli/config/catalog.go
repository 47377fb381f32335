package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	domainConfig "github.com/secmon-lab/boardsync/pkg/domain/model/config"
	"github.com/secmon-lab/boardsync/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

// CatalogFile is the TOML layout of the status catalog:
//
//	[[status]]
//	name = "Active"
//	sub_statuses = ["Trade", "Winback"]
//
//	  [[status.required]]
//	  key = "signed_date"
//	  label = "Agreement signed date"
type CatalogFile struct {
	Statuses []StatusEntry `toml:"status"`
}

type StatusEntry struct {
	Name        string       `toml:"name"`
	SubStatuses []string     `toml:"sub_statuses"`
	Required    []FieldEntry `toml:"required"`
}

type FieldEntry struct {
	Key   string `toml:"key"`
	Label string `toml:"label"`
}

// Validate checks that status names are unique across buckets and
// sub-statuses, and that every label maps to exactly one key and back
func (c *CatalogFile) Validate() error {
	if len(c.Statuses) == 0 {
		return goerr.Wrap(ErrInvalidConfig, "catalog has no status")
	}

	names := make(map[string]bool)
	labelToKey := make(map[string]string)
	keyToLabel := make(map[string]string)

	claim := func(name string, idx int) error {
		name = strings.TrimSpace(name)
		if name == "" {
			return goerr.Wrap(ErrMissingName, "status name is empty", goerr.V(StatusIndexKey, idx))
		}
		if names[name] {
			return goerr.Wrap(ErrDuplicateStatus, "status is defined twice", goerr.V(StatusKey, name))
		}
		names[name] = true
		return nil
	}

	for i, st := range c.Statuses {
		if err := claim(st.Name, i); err != nil {
			return err
		}
		for _, sub := range st.SubStatuses {
			if err := claim(sub, i); err != nil {
				return err
			}
		}

		for _, f := range st.Required {
			key, label := strings.TrimSpace(f.Key), strings.TrimSpace(f.Label)
			if key == "" || label == "" {
				return goerr.Wrap(ErrInvalidRequirement, "required field needs key and label",
					goerr.V(StatusKey, st.Name), goerr.V(FieldKeyKey, f.Key), goerr.V(FieldLabelKey, f.Label))
			}
			if k, ok := labelToKey[label]; ok && k != key {
				return goerr.Wrap(ErrLabelConflict, "label is used for two keys",
					goerr.V(FieldLabelKey, label), goerr.V(FieldKeyKey, key), goerr.V("other_key", k))
			}
			if l, ok := keyToLabel[key]; ok && l != label {
				return goerr.Wrap(ErrLabelConflict, "key has two labels",
					goerr.V(FieldKeyKey, key), goerr.V(FieldLabelKey, label), goerr.V("other_label", l))
			}
			labelToKey[label] = key
			keyToLabel[key] = label
		}
	}
	return nil
}

// Definitions converts the file into domain status definitions
func (c *CatalogFile) Definitions() []domainConfig.StatusDefinition {
	defs := make([]domainConfig.StatusDefinition, len(c.Statuses))
	for i, st := range c.Statuses {
		def := domainConfig.StatusDefinition{Name: types.Status(strings.TrimSpace(st.Name))}
		for _, sub := range st.SubStatuses {
			def.SubStatuses = append(def.SubStatuses, types.Status(strings.TrimSpace(sub)))
		}
		for _, f := range st.Required {
			def.Required = append(def.Required, domainConfig.RequiredField{
				Key:   strings.TrimSpace(f.Key),
				Label: strings.TrimSpace(f.Label),
			})
		}
		defs[i] = def
	}
	return defs
}

// LoadCatalogFile reads and validates a catalog TOML file
func LoadCatalogFile(path string) (*CatalogFile, error) {
	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, goerr.Wrap(ErrConfigNotFound, "catalog file does not exist", goerr.V(ConfigPathKey, path))
		}
		return nil, goerr.Wrap(err, "failed to read catalog file", goerr.V(ConfigPathKey, path))
	}

	var file CatalogFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, goerr.Wrap(err, "failed to parse TOML catalog", goerr.V(ConfigPathKey, path))
	}
	if err := file.Validate(); err != nil {
		return nil, goerr.Wrap(err, "catalog validation failed", goerr.V(ConfigPathKey, path))
	}
	return &file, nil
}

// Catalog selects the status catalog. Without a file the built-in
// layout is used.
type Catalog struct {
	path string
}

func (x *Catalog) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "catalog",
			Aliases:     []string{"c"},
			Usage:       "Status catalog TOML file (built-in layout when omitted)",
			Category:    "Board",
			Destination: &x.path,
			Sources:     cli.EnvVars("BOARDSYNC_CATALOG"),
		},
	}
}

func (x Catalog) LogValue() slog.Value {
	return slog.GroupValue(slog.String("path", x.path))
}

func (x *Catalog) Path() string {
	return x.path
}

func (x *Catalog) Configure() (*domainConfig.Catalog, error) {
	if x.path == "" {
		return domainConfig.NewCatalog(domainConfig.DefaultStatusDefinitions()), nil
	}
	file, err := LoadCatalogFile(x.path)
	if err != nil {
		return nil, err
	}
	return domainConfig.NewCatalog(file.Definitions()), nil
}
