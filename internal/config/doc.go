// Package config provides loading and environment overlay for notiq runtime
// configuration. It exposes a Default() baseline, a JSON file loader, and a
// NOTIQ_* environment overlay.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/notiq.json"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	rt, _ := runtime.Open(runtime.Options{DataDir: "/var/lib/notiq", Config: cfg})
//	defer rt.Close()
package config
