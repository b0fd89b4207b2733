package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Load reads an optional YAML file at path, merges it over the built-in
// defaults, then applies environment-variable overrides (spec.md §6's
// DATA_PATH, DATABASE_URL, MODEL_PATH, SECRET_KEY, MAX_LOADED_PROJECTS,
// N_WORKERS_CPU, N_WORKERS_GPU, UPDATE_TIMEOUT, JWT_ALGORITHM, MAIL_*).
// A missing file at path is not an error — the server runs on defaults and
// environment variables alone, matching godotenv.Load's tolerant behavior
// in cmd/tarsy/main.go.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			var fileCfg Config
			if err := yaml.Unmarshal(data, &fileCfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
			if err := mergo.Merge(cfg, fileCfg, mergo.WithOverride); err != nil {
				return nil, fmt.Errorf("merging config file %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fine, defaults + env only
		default:
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.DataPath, "DATA_PATH")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.ModelPath, "MODEL_PATH")
	setString(&cfg.SecretKey, "SECRET_KEY")
	setString(&cfg.JWTAlgorithm, "JWT_ALGORITHM")
	setInt(&cfg.MaxLoadedProjects, "MAX_LOADED_PROJECTS")
	setInt(&cfg.Queue.NWorkersCPU, "N_WORKERS_CPU")
	setInt(&cfg.Queue.NWorkersGPU, "N_WORKERS_GPU")
	setDuration(&cfg.Queue.UpdateTimeout, "UPDATE_TIMEOUT")

	setString(&cfg.Mail.Host, "MAIL_HOST")
	setString(&cfg.Mail.User, "MAIL_USER")
	setString(&cfg.Mail.Password, "MAIL_PASSWORD")
	setString(&cfg.Mail.From, "MAIL_FROM")
	setInt(&cfg.Mail.Port, "MAIL_PORT")
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, env string) {
	v := os.Getenv(env)
	if v == "" {
		return
	}
	// UPDATE_TIMEOUT is documented in seconds (spec.md §5 default 1);
	// accept a bare integer as seconds, or a Go duration string.
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}
