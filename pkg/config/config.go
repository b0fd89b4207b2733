// Package config loads activetigger's server configuration from an
// optional YAML file merged with environment variables, following the
// layered-defaults approach of pkg/config/loader.go in the teacher repo.
package config

import "time"

// Config is the fully resolved, ready-to-use server configuration.
type Config struct {
	DataPath    string `yaml:"data_path"`
	DatabaseURL string `yaml:"database_url"`
	ModelPath   string `yaml:"model_path"`
	SecretKey   string `yaml:"secret_key"`

	MaxLoadedProjects int `yaml:"max_loaded_projects"`

	Queue QueueConfig `yaml:"queue"`

	JWTAlgorithm  string        `yaml:"jwt_algorithm"`
	TokenLifetime time.Duration `yaml:"token_lifetime"`

	ActiveUserWindow time.Duration `yaml:"active_user_window"`

	Mail MailConfig `yaml:"mail"`
}

// QueueConfig sizes the two worker pools and the reaper tick, mirroring
// pkg/config/queue.go's QueueConfig.
type QueueConfig struct {
	NWorkersCPU  int           `yaml:"n_workers_cpu"`
	NWorkersGPU  int           `yaml:"n_workers_gpu"`
	UpdateTimeout time.Duration `yaml:"update_timeout"`
}

// MailConfig groups the MAIL_* environment knobs from spec.md §6.
type MailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}
