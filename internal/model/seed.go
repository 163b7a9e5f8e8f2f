package model

import (
	"context"
	"fmt"
	"os"
	"strings"

	"snapkit/internal/config"
	"snapkit/internal/entity"
	"snapkit/internal/utils"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// PoolKeySeed 是密钥文件中的一条记录。
type PoolKeySeed struct {
	Name   string `yaml:"name"`
	APIKey string `yaml:"api_key"`
	Active *bool  `yaml:"active"`
}

type poolKeysFile struct {
	Keys []PoolKeySeed `yaml:"keys"`
}

// LoadPoolKeysFile parses a YAML provisioning file of the form:
//
//	keys:
//	  - name: primary
//	    api_key: AIza...
//	    active: true
func LoadPoolKeysFile(path string) ([]PoolKeySeed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pool keys file: %w", err)
	}
	var file poolKeysFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse pool keys file: %w", err)
	}
	return file.Keys, nil
}

// SeedPoolKeys ensures keys from POOL_API_KEYS and POOL_KEYS_FILE exist in the pool.
// Keys already present (matched by secret) are left untouched.
func SeedPoolKeys(ctx context.Context, repo Repository, cfg config.Config) error {
	if repo == nil {
		return nil
	}

	var seeds []PoolKeySeed
	for i, key := range cfg.PoolAPIKeys {
		if strings.TrimSpace(key) == "" {
			continue
		}
		seeds = append(seeds, PoolKeySeed{Name: fmt.Sprintf("env-%d", i+1), APIKey: key})
	}
	if path := strings.TrimSpace(cfg.PoolKeysFile); path != "" {
		fromFile, err := LoadPoolKeysFile(path)
		if err != nil {
			return err
		}
		seeds = append(seeds, fromFile...)
	}

	created := 0
	for _, seed := range seeds {
		secret := strings.TrimSpace(seed.APIKey)
		if secret == "" {
			continue
		}
		active := true
		if seed.Active != nil {
			active = *seed.Active
		}
		key := &entity.DbPoolKey{Name: strings.TrimSpace(seed.Name), APIKey: secret, IsActive: active}
		ok, err := repo.EnsurePoolKey(ctx, key)
		if err != nil {
			return fmt.Errorf("seed pool key %s: %w", utils.MaskSecret(secret), err)
		}
		if ok {
			created++
		}
	}
	if created > 0 {
		logrus.WithField("created", created).Info("pool keys seeded")
	}
	return nil
}
