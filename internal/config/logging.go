package config

import "roguelike-forge-api/pkg/logger"

// LoggerOptions 转换为日志器初始化参数
func (c LoggingConfig) LoggerOptions() logger.Options {
	return logger.Options{
		Level:  c.Level,
		Format: c.Format,
		Output: c.Output,
		File: logger.FileOptions{
			Path:       c.File.Path,
			MaxSizeMB:  c.File.MaxSizeMB,
			MaxBackups: c.File.MaxBackups,
			MaxAgeDays: c.File.MaxAgeDays,
			Compress:   c.File.Compress,
		},
	}
}
