// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation,
// so endpoint hosts can be supplied per deployment without editing the file.
package config
