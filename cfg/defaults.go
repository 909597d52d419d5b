package cfg

// GetDefaultLoggingConfig returns the default logging configuration used
// during application startup, before a config file or flags are parsed.
func GetDefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Severity:  INFO,
		Format:    "text",
		LogRotate: DefaultLogRotateConfig(),
	}
}

// GetDefaultCacheConfig returns the default cache configuration.
func GetDefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxSizeMB:   DefaultCacheMaxSizeMB,
		Threshold:   DefaultCacheThreshold,
		NoAtime:     true,
		WarmOnMount: DefaultCacheWarmOnMount,
	}
}
