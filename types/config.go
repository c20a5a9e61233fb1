package types

import "time"

type AzureConfig struct {
	AccountName      string        `yaml:"account_name"`
	AccountKey       string        `yaml:"account_key"`
	ServiceURL       string        `yaml:"service_url"`
	ConnectionString string        `yaml:"connection_string"`
	Timeout          time.Duration `yaml:"timeout"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type MemoryConfig struct {
	MaxRows  int `yaml:"max_rows"`
	PageSize int `yaml:"page_size"`
}

type SweepConfig struct {
	Schedule string `yaml:"schedule"`
	Policy   string `yaml:"policy"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type Config struct {
	Backend      string        `yaml:"backend"`
	TableName    string        `yaml:"table_name"`
	PartitionKey string        `yaml:"partition_key"`
	Azure        AzureConfig   `yaml:"azure"`
	Redis        RedisConfig   `yaml:"redis"`
	Memory       MemoryConfig  `yaml:"memory"`
	Sweep        SweepConfig   `yaml:"sweep"`
	Log          LogConfig     `yaml:"log"`
	Metrics      MetricsConfig `yaml:"metrics"`
}
